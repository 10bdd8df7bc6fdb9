package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qms/dashboard-service/internal/models"
)

// OpeningHours returns all seven days in week order. Days never stored are
// closed with the default times.
func (s *Service) OpeningHours(ctx context.Context) ([]models.OpeningHours, error) {
	stored, err := s.store.ListOpeningHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("list opening hours: %w", err)
	}
	byDay := make(map[string]models.OpeningHours, len(stored))
	for _, h := range stored {
		byDay[h.Day] = h
	}
	out := make([]models.OpeningHours, 0, len(models.WeekDays))
	for _, day := range models.WeekDays {
		h, ok := byDay[day]
		if !ok {
			h = models.OpeningHours{Day: day}
		}
		if h.StartTime == "" {
			h.StartTime = models.DefaultOpeningTime
		}
		if h.EndTime == "" {
			h.EndTime = models.DefaultClosingTime
		}
		out = append(out, h)
	}
	return out, nil
}

// UpdateOpeningHours stores one day's schedule.
func (s *Service) UpdateOpeningHours(ctx context.Context, actor string, hours models.OpeningHours) (models.OpeningHours, error) {
	day, ok := canonicalDay(hours.Day)
	if !ok {
		return models.OpeningHours{}, invalid("day", fmt.Sprintf("Unknown day %q.", hours.Day), ErrUnknownDay)
	}
	hours.Day = day
	if err := validateTimes(hours.StartTime, hours.EndTime); err != nil {
		return models.OpeningHours{}, err
	}
	if err := s.store.SaveOpeningHours(ctx, []models.OpeningHours{hours}); err != nil {
		s.auditFailure(ctx, actor, "Error updating "+day, err)
		return models.OpeningHours{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Opening hours updated for %s: %s - %s", day, hours.StartTime, hours.EndTime))
	return hours, nil
}

// ApplyUniversalHours sets the same times on every day and keeps each day's
// enabled flag.
func (s *Service) ApplyUniversalHours(ctx context.Context, actor, start, end string) ([]models.OpeningHours, error) {
	if err := validateTimes(start, end); err != nil {
		return nil, err
	}
	current, err := s.OpeningHours(ctx)
	if err != nil {
		return nil, err
	}
	for i := range current {
		current[i].StartTime = start
		current[i].EndTime = end
	}
	if err := s.store.SaveOpeningHours(ctx, current); err != nil {
		s.auditFailure(ctx, actor, "Error applying universal time", err)
		return nil, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Universal time applied to all days: %s - %s", start, end))
	return current, nil
}

func canonicalDay(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, day := range models.WeekDays {
		if strings.EqualFold(day, value) {
			return day, true
		}
	}
	return "", false
}

func validateTimes(start, end string) error {
	from, err := time.Parse("15:04", start)
	if err != nil || len(start) != 5 {
		return invalid("start_time", "Start time must be HH:MM.", ErrInvalidHours)
	}
	to, err := time.Parse("15:04", end)
	if err != nil || len(end) != 5 {
		return invalid("end_time", "End time must be HH:MM.", ErrInvalidHours)
	}
	if !from.Before(to) {
		return invalid("end_time", "End time must be after start time.", ErrInvalidHours)
	}
	return nil
}
