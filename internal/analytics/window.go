package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

// Window is a time range inclusive on both ends.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns the number of calendar days the window touches in loc.
func (w Window) Days(loc *time.Location) int {
	first := startOfDay(w.Start.In(loc))
	last := startOfDay(w.End.In(loc))
	n := 0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endBefore(next time.Time) time.Time {
	return next.Add(-time.Nanosecond)
}

func DayWindow(day time.Time) Window {
	start := startOfDay(day)
	return Window{Start: start, End: endBefore(start.AddDate(0, 0, 1))}
}

// WeekWindow covers the ISO week containing day, Monday through Sunday.
func WeekWindow(day time.Time) Window {
	start := startOfDay(day)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return Window{Start: start, End: endBefore(start.AddDate(0, 0, 7))}
}

func MonthWindow(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return Window{Start: start, End: endBefore(start.AddDate(0, 1, 0))}
}

// RangeWindow covers whole days from the day of start through the day of end.
func RangeWindow(start, end time.Time) Window {
	first := startOfDay(start)
	last := startOfDay(end)
	return Window{Start: first, End: endBefore(last.AddDate(0, 0, 1))}
}

type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
	PeriodRange PeriodKind = "range"
)

type Period struct {
	Kind   PeriodKind `json:"kind"`
	Window Window     `json:"window"`
}

func DayPeriod(day time.Time) Period {
	return Period{Kind: PeriodDay, Window: DayWindow(day)}
}

func WeekPeriod(day time.Time) Period {
	return Period{Kind: PeriodWeek, Window: WeekWindow(day)}
}

func MonthPeriod(day time.Time) Period {
	return Period{Kind: PeriodMonth, Window: MonthWindow(day)}
}

func RangePeriod(start, end time.Time) Period {
	return Period{Kind: PeriodRange, Window: RangeWindow(start, end)}
}

// Previous returns the comparable period immediately before p.
func (p Period) Previous() Period {
	start := p.Window.Start
	switch p.Kind {
	case PeriodDay:
		return DayPeriod(start.AddDate(0, 0, -1))
	case PeriodWeek:
		return WeekPeriod(start.AddDate(0, 0, -7))
	case PeriodMonth:
		return MonthPeriod(start.AddDate(0, -1, 0))
	default:
		days := p.Window.Days(start.Location())
		prevStart := start.AddDate(0, 0, -days)
		return Period{Kind: p.Kind, Window: Window{Start: prevStart, End: start.Add(-time.Nanosecond)}}
	}
}

// Closed reports whether the period ended before now.
func (p Period) Closed(now time.Time) bool {
	return p.Window.End.Before(now)
}

func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidPeriod, value)
	}
	return t, nil
}

func ParseMonth(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01", strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrInvalidPeriod, value)
	}
	return t, nil
}

// ParseWeek parses an ISO week such as "2024-W19" and returns its Monday.
func ParseWeek(value string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(value)
	yearPart, weekPart, ok := strings.Cut(raw, "-W")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: week %q", ErrInvalidPeriod, value)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: week %q", ErrInvalidPeriod, value)
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("%w: week %q", ErrInvalidPeriod, value)
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	monday := WeekWindow(jan4).Start.AddDate(0, 0, (week-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return time.Time{}, fmt.Errorf("%w: week %q", ErrInvalidPeriod, value)
	}
	return monday, nil
}

// FormatWeek renders the ISO week containing t, e.g. "2024-W19".
func FormatWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
