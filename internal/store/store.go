package store

import (
	"context"
	"time"

	"qms/dashboard-service/internal/models"
)

// TimeField names the visit timestamp a filter ranges over.
type TimeField string

const (
	JoinedOn    TimeField = "joined_on"
	CompletedOn TimeField = "completed_on"
)

// VisitFilter selects visits. From and To are inclusive; zero values leave
// that end open. A zero Limit means no limit.
type VisitFilter struct {
	Statuses  []string
	TimeField TimeField
	From      time.Time
	To        time.Time
	Limit     int
	Newest    bool
}

// RefKind is the kind of record a visit references by id.
type RefKind string

const (
	RefService RefKind = "service"
	RefDesk    RefKind = "desk"
	RefTeller  RefKind = "teller"
)

type VisitStore interface {
	ListVisits(ctx context.Context, filter VisitFilter) ([]models.Visit, error)
}

type CatalogStore interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	CreateService(ctx context.Context, name string) (models.Service, error)
	RenameService(ctx context.Context, serviceID, name string) (models.Service, error)
	SetServiceEnabled(ctx context.Context, serviceID string, enabled bool) (models.Service, error)

	ListDesks(ctx context.Context) ([]models.Desk, error)
	CreateDesk(ctx context.Context, name string) (models.Desk, error)
	RenameDesk(ctx context.Context, deskID, name string) (models.Desk, error)
	SetDeskEnabled(ctx context.Context, deskID string, enabled bool) (models.Desk, error)

	ListTellers(ctx context.Context) ([]models.Teller, error)
	CreateTeller(ctx context.Context, teller models.Teller) (models.Teller, error)
	UpdateTeller(ctx context.Context, teller models.Teller) (models.Teller, error)
	SetTellerEnabled(ctx context.Context, tellerID string, enabled bool) (models.Teller, error)

	// ResolveNames returns display names for the given ids in one lookup.
	// Ids with no matching record are absent from the result.
	ResolveNames(ctx context.Context, kind RefKind, ids []string) (map[string]string, error)

	ListOpeningHours(ctx context.Context) ([]models.OpeningHours, error)
	SaveOpeningHours(ctx context.Context, hours []models.OpeningHours) error
}

type AuditStore interface {
	InsertLog(ctx context.Context, entry models.LogEntry) error
	ListLogs(ctx context.Context, from, to time.Time, limit int) ([]models.LogEntry, error)
}

type AccountStore interface {
	GetAdminByEmail(ctx context.Context, email string) (models.AdminProfile, string, error)
	GetAdmin(ctx context.Context, adminID string) (models.AdminProfile, string, error)
	UpdateAdminProfile(ctx context.Context, profile models.AdminProfile) (models.AdminProfile, error)
	UpdateAdminPassword(ctx context.Context, adminID, passwordHash string) error
	CreateSession(ctx context.Context, adminID string, expiresAt time.Time) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.AdminProfile, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type Store interface {
	VisitStore
	CatalogStore
	AuditStore
	AccountStore
}
