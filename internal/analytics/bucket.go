package analytics

import (
	"fmt"
	"sort"
	"time"
)

// Unit selects how records are grouped in time.
type Unit string

const (
	// UnitHour buckets by hour of day, 00 through 23. All days are kept.
	UnitHour Unit = "hour"
	// UnitWeekday buckets by Mon..Fri. Weekend records are dropped.
	UnitWeekday Unit = "weekday"
	// UnitBusinessDay buckets by ISO date for every Mon..Fri in the window.
	UnitBusinessDay Unit = "business_day"
	// UnitBusinessDayOfMonth buckets by day of month ("01".."31") for every
	// Mon..Fri in the window.
	UnitBusinessDayOfMonth Unit = "business_day_of_month"
	// UnitCalendarDay buckets by ISO date for every day in the window.
	UnitCalendarDay Unit = "calendar_day"
)

type Mode int

const (
	ModeCount Mode = iota
	ModeSum
	ModeAverage
)

var weekdayKeys = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

type Options[T any] struct {
	Window   Window
	Unit     Unit
	Location *time.Location
	Time     func(T) time.Time
	Category func(T) string
	// Value extracts the measured field for ModeSum and ModeAverage. Records
	// for which it reports false contribute nothing.
	Value func(T) (float64, bool)
	Mode  Mode
	// Categories are always present in every bucket, zero when unused.
	Categories []string
	// Restrict drops records whose category is not in Categories.
	Restrict bool
}

type Bucket struct {
	Key    string             `json:"key"`
	Totals map[string]float64 `json:"totals"`
}

type Series struct {
	Unit       Unit     `json:"unit"`
	Categories []string `json:"categories"`
	Buckets    []Bucket `json:"buckets"`
}

// Aggregate groups records into the canonical buckets of opts.Unit over
// opts.Window. Every expected bucket is returned in order, with an explicit
// zero for each category that saw no activity.
func Aggregate[T any](records []T, opts Options[T]) Series {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	keys := BucketKeys(opts.Unit, opts.Window, loc)
	index := make(map[string]int, len(keys))
	for i, key := range keys {
		index[key] = i
	}

	known := make(map[string]bool, len(opts.Categories))
	categories := make([]string, 0, len(opts.Categories))
	for _, c := range opts.Categories {
		if known[c] {
			continue
		}
		known[c] = true
		categories = append(categories, c)
	}

	type cell struct {
		sum   float64
		count int
	}
	cells := make([]map[string]*cell, len(keys))
	for i := range cells {
		cells[i] = make(map[string]*cell)
	}
	var extra []string

	for _, rec := range records {
		ts := opts.Time(rec)
		if !opts.Window.Contains(ts) {
			continue
		}
		key, ok := BucketKey(opts.Unit, ts, loc)
		if !ok {
			continue
		}
		i, ok := index[key]
		if !ok {
			continue
		}
		category := opts.Category(rec)
		if !known[category] {
			if opts.Restrict {
				continue
			}
			known[category] = true
			extra = append(extra, category)
		}
		value := 1.0
		if opts.Mode != ModeCount {
			if opts.Value == nil {
				continue
			}
			v, ok := opts.Value(rec)
			if !ok {
				continue
			}
			value = v
		}
		c := cells[i][category]
		if c == nil {
			c = &cell{}
			cells[i][category] = c
		}
		c.sum += value
		c.count++
	}

	sort.Strings(extra)
	categories = append(categories, extra...)

	buckets := make([]Bucket, len(keys))
	for i, key := range keys {
		totals := make(map[string]float64, len(categories))
		for _, category := range categories {
			c := cells[i][category]
			switch {
			case c == nil:
				totals[category] = 0
			case opts.Mode == ModeAverage:
				totals[category] = c.sum / float64(c.count)
			default:
				totals[category] = c.sum
			}
		}
		buckets[i] = Bucket{Key: key, Totals: totals}
	}
	return Series{Unit: opts.Unit, Categories: categories, Buckets: buckets}
}

// BucketKey derives the bucket a timestamp falls in. It reports false for
// timestamps the unit excludes.
func BucketKey(unit Unit, t time.Time, loc *time.Location) (string, bool) {
	t = t.In(loc)
	weekend := t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
	switch unit {
	case UnitHour:
		return fmt.Sprintf("%02d", t.Hour()), true
	case UnitWeekday:
		if weekend {
			return "", false
		}
		return weekdayKeys[int(t.Weekday())-1], true
	case UnitBusinessDay:
		if weekend {
			return "", false
		}
		return t.Format("2006-01-02"), true
	case UnitBusinessDayOfMonth:
		if weekend {
			return "", false
		}
		return t.Format("02"), true
	case UnitCalendarDay:
		return t.Format("2006-01-02"), true
	default:
		return "", false
	}
}

// BucketKeys lists the expected buckets of unit over window, in order.
func BucketKeys(unit Unit, window Window, loc *time.Location) []string {
	switch unit {
	case UnitHour:
		keys := make([]string, 24)
		for h := range keys {
			keys[h] = fmt.Sprintf("%02d", h)
		}
		return keys
	case UnitWeekday:
		return append([]string(nil), weekdayKeys...)
	case UnitBusinessDay, UnitBusinessDayOfMonth, UnitCalendarDay:
		var keys []string
		seen := make(map[string]bool)
		last := startOfDay(window.End.In(loc))
		for day := startOfDay(window.Start.In(loc)); !day.After(last); day = day.AddDate(0, 0, 1) {
			key, ok := BucketKey(unit, day, loc)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
		return keys
	default:
		return nil
	}
}

// CategoryName looks up a display name, falling back when id is unknown.
func CategoryName(names map[string]string, id, fallback string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fallback
}
