package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"qms/dashboard-service/internal/analytics"
	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

var (
	ErrInvalidName   = errors.New("name is required")
	ErrDuplicateName = errors.New("duplicate name")
	ErrInvalidTeller = errors.New("invalid teller")
	ErrInvalidHours  = errors.New("invalid opening hours")
	ErrUnknownDay    = errors.New("unknown day")
)

// ValidationError carries a message meant for the form field that failed.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

const logLimit = 100

type Store interface {
	store.CatalogStore
	store.AuditStore
}

type Service struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewService(st Store, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: st, loc: loc, now: time.Now, logger: logger}
}

// named is the shape shared by desks and services for uniqueness checks.
type named struct {
	id   string
	name string
}

// checkUnique reports a duplicate when another record already uses name,
// compared case-insensitively. The record being renamed is ignored.
func checkUnique(existing []named, selfID, name, kind string) error {
	for _, rec := range existing {
		if rec.id != selfID && strings.EqualFold(rec.name, name) {
			return invalid("name", fmt.Sprintf("A %s with this name already exists.", kind), ErrDuplicateName)
		}
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "Name is required.", ErrInvalidName)
	}
	return name, nil
}

// writeFailed maps a store write error. Unique violations that slipped past
// the pre-check surface as duplicates.
func writeFailed(err error, kind string) error {
	if errors.Is(err, store.ErrDuplicateName) {
		return invalid("name", fmt.Sprintf("A %s with this name already exists.", kind), ErrDuplicateName)
	}
	return err
}

func (s *Service) ListDesks(ctx context.Context) ([]models.Desk, error) {
	return s.store.ListDesks(ctx)
}

func (s *Service) deskNames(ctx context.Context) ([]named, error) {
	desks, err := s.store.ListDesks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list desks: %w", err)
	}
	out := make([]named, 0, len(desks))
	for _, d := range desks {
		out = append(out, named{id: d.DeskID, name: d.Name})
	}
	return out, nil
}

func (s *Service) CreateDesk(ctx context.Context, actor, name string) (models.Desk, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.Desk{}, err
	}
	existing, err := s.deskNames(ctx)
	if err != nil {
		return models.Desk{}, err
	}
	if err := checkUnique(existing, "", name, "desk"); err != nil {
		return models.Desk{}, err
	}
	desk, err := s.store.CreateDesk(ctx, name)
	if err != nil {
		s.auditFailure(ctx, actor, "Error adding desk", err)
		return models.Desk{}, writeFailed(err, "desk")
	}
	s.audit(ctx, actor, fmt.Sprintf("New desk added: %s (ID: %s)", desk.Name, desk.DeskID))
	return desk, nil
}

func (s *Service) RenameDesk(ctx context.Context, actor, deskID, name string) (models.Desk, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.Desk{}, err
	}
	existing, err := s.deskNames(ctx)
	if err != nil {
		return models.Desk{}, err
	}
	if err := checkUnique(existing, deskID, name, "desk"); err != nil {
		return models.Desk{}, err
	}
	desk, err := s.store.RenameDesk(ctx, deskID, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating desk", err)
		}
		return models.Desk{}, writeFailed(err, "desk")
	}
	s.audit(ctx, actor, fmt.Sprintf("Desk updated: %s (ID: %s)", desk.Name, desk.DeskID))
	return desk, nil
}

func (s *Service) SetDeskEnabled(ctx context.Context, actor, deskID string, enabled bool) (models.Desk, error) {
	desk, err := s.store.SetDeskEnabled(ctx, deskID, enabled)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating desk status", err)
		}
		return models.Desk{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Desk %s %s", desk.Name, enabledWord(enabled)))
	return desk, nil
}

func (s *Service) ListServices(ctx context.Context) ([]models.Service, error) {
	return s.store.ListServices(ctx)
}

func (s *Service) serviceNames(ctx context.Context) ([]named, error) {
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]named, 0, len(services))
	for _, svc := range services {
		out = append(out, named{id: svc.ServiceID, name: svc.Name})
	}
	return out, nil
}

func (s *Service) CreateService(ctx context.Context, actor, name string) (models.Service, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.Service{}, err
	}
	existing, err := s.serviceNames(ctx)
	if err != nil {
		return models.Service{}, err
	}
	if err := checkUnique(existing, "", name, "service"); err != nil {
		return models.Service{}, err
	}
	svc, err := s.store.CreateService(ctx, name)
	if err != nil {
		s.auditFailure(ctx, actor, "Error adding service", err)
		return models.Service{}, writeFailed(err, "service")
	}
	s.audit(ctx, actor, fmt.Sprintf("New service added: %s (ID: %s)", svc.Name, svc.ServiceID))
	return svc, nil
}

func (s *Service) RenameService(ctx context.Context, actor, serviceID, name string) (models.Service, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.Service{}, err
	}
	existing, err := s.serviceNames(ctx)
	if err != nil {
		return models.Service{}, err
	}
	if err := checkUnique(existing, serviceID, name, "service"); err != nil {
		return models.Service{}, err
	}
	svc, err := s.store.RenameService(ctx, serviceID, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating service", err)
		}
		return models.Service{}, writeFailed(err, "service")
	}
	s.audit(ctx, actor, fmt.Sprintf("Service updated: %s (ID: %s)", svc.Name, svc.ServiceID))
	return svc, nil
}

func (s *Service) SetServiceEnabled(ctx context.Context, actor, serviceID string, enabled bool) (models.Service, error) {
	svc, err := s.store.SetServiceEnabled(ctx, serviceID, enabled)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating service status", err)
		}
		return models.Service{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Service %s %s", svc.Name, enabledWord(enabled)))
	return svc, nil
}

type TellerInput struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	DeskID     string   `json:"desk_id"`
	ServiceIDs []string `json:"service_ids"`
	ImageURL   string   `json:"-"`
}

func (in TellerInput) validate() (TellerInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.DeskID = strings.TrimSpace(in.DeskID)
	if in.Name == "" {
		return in, invalid("name", "Name is required.", ErrInvalidTeller)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return in, invalid("email", "A valid email is required.", ErrInvalidTeller)
	}
	services := make([]string, 0, len(in.ServiceIDs))
	for _, id := range in.ServiceIDs {
		if id = strings.TrimSpace(id); id != "" {
			services = append(services, id)
		}
	}
	in.ServiceIDs = services
	return in, nil
}

func (s *Service) ListTellers(ctx context.Context) ([]models.Teller, error) {
	return s.store.ListTellers(ctx)
}

func (s *Service) CreateTeller(ctx context.Context, actor string, in TellerInput) (models.Teller, error) {
	in, err := in.validate()
	if err != nil {
		return models.Teller{}, err
	}
	teller, err := s.store.CreateTeller(ctx, models.Teller{
		Name:       in.Name,
		Email:      in.Email,
		DeskID:     in.DeskID,
		ServiceIDs: in.ServiceIDs,
		Enabled:    true,
		ImageURL:   in.ImageURL,
	})
	if err != nil {
		s.auditFailure(ctx, actor, "Error adding teller", err)
		return models.Teller{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("New teller added: %s (ID: %s)", teller.Name, teller.TellerID))
	return teller, nil
}

// UpdateTeller replaces the teller's desk and its whole services list. An
// empty ImageURL keeps the stored image.
func (s *Service) UpdateTeller(ctx context.Context, actor, tellerID string, in TellerInput) (models.Teller, error) {
	in, err := in.validate()
	if err != nil {
		return models.Teller{}, err
	}
	teller, err := s.store.UpdateTeller(ctx, models.Teller{
		TellerID:   tellerID,
		Name:       in.Name,
		Email:      in.Email,
		DeskID:     in.DeskID,
		ServiceIDs: in.ServiceIDs,
		ImageURL:   in.ImageURL,
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating teller", err)
		}
		return models.Teller{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Teller updated: %s (ID: %s)", teller.Name, teller.TellerID))
	return teller, nil
}

func (s *Service) SetTellerEnabled(ctx context.Context, actor, tellerID string, enabled bool) (models.Teller, error) {
	teller, err := s.store.SetTellerEnabled(ctx, tellerID, enabled)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.auditFailure(ctx, actor, "Error updating teller status", err)
		}
		return models.Teller{}, err
	}
	s.audit(ctx, actor, fmt.Sprintf("Teller %s %s", teller.Name, enabledWord(enabled)))
	return teller, nil
}

// Logs lists the audit entries of one day, newest first.
func (s *Service) Logs(ctx context.Context, day time.Time) ([]models.LogEntry, error) {
	window := analytics.DayWindow(day.In(s.loc))
	return s.store.ListLogs(ctx, window.Start, window.End, logLimit)
}

func (s *Service) audit(ctx context.Context, actor, message string) {
	s.insertLog(ctx, models.LogEntry{Level: models.LevelInfo, Message: message, Email: actor})
}

// auditFailure records a write that failed in the store. A duplicate name is
// a validation outcome and is not recorded.
func (s *Service) auditFailure(ctx context.Context, actor, action string, cause error) {
	if errors.Is(cause, store.ErrDuplicateName) {
		return
	}
	s.logger.Error(strings.ToLower(action), zap.Error(cause))
	s.insertLog(ctx, models.LogEntry{
		Level:   models.LevelError,
		Message: fmt.Sprintf("%s: %v", action, cause),
		Email:   actor,
	})
}

// insertLog is best effort; a failed audit write never fails the change.
func (s *Service) insertLog(ctx context.Context, entry models.LogEntry) {
	entry.Timestamp = s.now().UTC()
	if err := s.store.InsertLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err), zap.String("message", entry.Message))
	}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
