package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"qms/dashboard-service/internal/analytics"
	"qms/dashboard-service/internal/reports"
)

func (h *Handler) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	day, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	rows, err := h.reports.DayVisits(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []reports.VisitRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	overview, err := h.reports.TodayOverview(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/reports/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	ctx := r.Context()
	query := r.URL.Query()
	services := serviceNames(query.Get("services"))
	loc := h.reports.Location()

	var (
		result interface{}
		err    error
	)
	switch parts[0] {
	case "hourly":
		day, ok := h.dateParam(w, r, "date")
		if !ok {
			return
		}
		result, err = h.reports.HourlyVisits(ctx, day, services)
	case "weekly":
		day := h.reports.Today()
		if raw := query.Get("week"); raw != "" {
			if day, err = analytics.ParseWeek(raw, loc); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "week must be YYYY-Www")
				return
			}
		}
		result, err = h.reports.WeeklyVisits(ctx, day, services)
	case "monthly":
		day := h.reports.Today()
		if raw := query.Get("month"); raw != "" {
			if day, err = analytics.ParseMonth(raw, loc); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "month must be YYYY-MM")
				return
			}
		}
		result, err = h.reports.MonthlyVisits(ctx, day, services)
	case "range", "weekday-comparison":
		start, end, ok := h.rangeParams(w, r)
		if !ok {
			return
		}
		if parts[0] == "range" {
			result, err = h.reports.RangeVisits(ctx, start, end, services)
		} else {
			result, err = h.reports.WeekdayComparison(ctx, start, end, services)
		}
	case "metrics", "team":
		period, ok := h.periodParams(w, r)
		if !ok {
			return
		}
		if parts[0] == "metrics" {
			result, err = h.reports.Metrics(ctx, period)
		} else {
			result, err = h.reports.Team(ctx, period)
		}
	case "export":
		h.handleExport(w, r)
		return
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown report")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "format must be csv or xlsx")
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.reports.ExportVisits(r.Context(), start, end, format, &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	window := analytics.RangeWindow(start, end)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.Filename(window))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// dateParam parses an optional YYYY-MM-DD query parameter, defaulting to
// today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return h.today(), true
	}
	day, err := analytics.ParseDate(raw, h.location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

// maxRangeDays bounds custom ranges, inclusive of both ends.
const maxRangeDays = 366

func (h *Handler) rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	if query.Get("start") == "" || query.Get("end") == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "start and end are required")
		return time.Time{}, time.Time{}, false
	}
	start, ok := h.dateParam(w, r, "start")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := h.dateParam(w, r, "end")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "invalid_request", "end must not be before start")
		return time.Time{}, time.Time{}, false
	}
	if start.AddDate(0, 0, maxRangeDays-1).Before(end) {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("range must not exceed %d days", maxRangeDays))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// periodParams reads period=day|week|month|range with its matching date
// parameter. Missing values mean the current period.
func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (analytics.Period, bool) {
	query := r.URL.Query()
	loc := h.location()
	today := h.today()
	var err error
	switch analytics.PeriodKind(strings.TrimSpace(query.Get("period"))) {
	case "", analytics.PeriodDay:
		day, ok := h.dateParam(w, r, "date")
		return analytics.DayPeriod(day), ok
	case analytics.PeriodWeek:
		day := today
		if raw := query.Get("week"); raw != "" {
			day, err = analytics.ParseWeek(raw, loc)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "week must be YYYY-Www")
			return analytics.Period{}, false
		}
		return analytics.WeekPeriod(day), true
	case analytics.PeriodMonth:
		day := today
		if raw := query.Get("month"); raw != "" {
			day, err = analytics.ParseMonth(raw, loc)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "month must be YYYY-MM")
			return analytics.Period{}, false
		}
		return analytics.MonthPeriod(day), true
	case analytics.PeriodRange:
		start, end, ok := h.rangeParams(w, r)
		if !ok {
			return analytics.Period{}, false
		}
		return analytics.RangePeriod(start, end), true
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "period must be day, week, month or range")
		return analytics.Period{}, false
	}
}

func (h *Handler) today() time.Time {
	return h.reports.Today()
}

func (h *Handler) location() *time.Location {
	return h.reports.Location()
}

func serviceNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
