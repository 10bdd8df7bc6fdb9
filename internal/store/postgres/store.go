package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const visitColumns = `visit_id, service_id, desk_id, teller_id, state, joined_on, start_serving_time,
	completed_on, created_on, waiting_time, serving_time, total_time, queue_code, customer_name`

func (s *Store) ListVisits(ctx context.Context, filter store.VisitFilter) ([]models.Visit, error) {
	query, args := buildVisitQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []models.Visit{}
	for rows.Next() {
		var v models.Visit
		if err := rows.Scan(&v.VisitID, &v.ServiceID, &v.DeskID, &v.TellerID, &v.Status, &v.JoinedOn,
			&v.StartServingTime, &v.CompletedOn, &v.CreatedOn, &v.WaitingTime, &v.ServingTime,
			&v.TotalTime, &v.QueueCode, &v.CustomerName); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return visits, nil
}

func timeColumn(field store.TimeField) string {
	if field == store.CompletedOn {
		return "completed_on"
	}
	return "joined_on"
}

func buildVisitQuery(filter store.VisitFilter) (string, []any) {
	column := timeColumn(filter.TimeField)
	var where []string
	var args []any
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		where = append(where, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("%s >= $%d", column, len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("%s <= $%d", column, len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(visitColumns)
	b.WriteString(" FROM queues")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	order := "ASC"
	if filter.Newest {
		order = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, visit_id %s", column, order, order)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, name, enabled, created_on
		FROM services
		ORDER BY created_on ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.Enabled, &svc.CreatedOn); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, name string) (models.Service, error) {
	svc := models.Service{ServiceID: uuid.NewString(), Name: name, Enabled: true}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO services (service_id, name, enabled)
		VALUES ($1, $2, TRUE)
		RETURNING created_on
	`, svc.ServiceID, svc.Name)
	if err := row.Scan(&svc.CreatedOn); err != nil {
		return models.Service{}, mapWriteError(err)
	}
	return svc, nil
}

func (s *Store) RenameService(ctx context.Context, serviceID, name string) (models.Service, error) {
	return s.scanService(s.pool.QueryRow(ctx, `
		UPDATE services SET name = $2
		WHERE service_id = $1
		RETURNING service_id, name, enabled, created_on
	`, serviceID, name))
}

func (s *Store) SetServiceEnabled(ctx context.Context, serviceID string, enabled bool) (models.Service, error) {
	return s.scanService(s.pool.QueryRow(ctx, `
		UPDATE services SET enabled = $2
		WHERE service_id = $1
		RETURNING service_id, name, enabled, created_on
	`, serviceID, enabled))
}

func (s *Store) scanService(row pgx.Row) (models.Service, error) {
	var svc models.Service
	if err := row.Scan(&svc.ServiceID, &svc.Name, &svc.Enabled, &svc.CreatedOn); err != nil {
		return models.Service{}, mapWriteError(err)
	}
	return svc, nil
}

func (s *Store) ListDesks(ctx context.Context) ([]models.Desk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT desk_id, name, enabled, created_on
		FROM desks
		ORDER BY created_on ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	desks := []models.Desk{}
	for rows.Next() {
		var desk models.Desk
		if err := rows.Scan(&desk.DeskID, &desk.Name, &desk.Enabled, &desk.CreatedOn); err != nil {
			return nil, err
		}
		desks = append(desks, desk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return desks, nil
}

func (s *Store) CreateDesk(ctx context.Context, name string) (models.Desk, error) {
	desk := models.Desk{DeskID: uuid.NewString(), Name: name, Enabled: true}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO desks (desk_id, name, enabled)
		VALUES ($1, $2, TRUE)
		RETURNING created_on
	`, desk.DeskID, desk.Name)
	if err := row.Scan(&desk.CreatedOn); err != nil {
		return models.Desk{}, mapWriteError(err)
	}
	return desk, nil
}

func (s *Store) RenameDesk(ctx context.Context, deskID, name string) (models.Desk, error) {
	return s.scanDesk(s.pool.QueryRow(ctx, `
		UPDATE desks SET name = $2
		WHERE desk_id = $1
		RETURNING desk_id, name, enabled, created_on
	`, deskID, name))
}

func (s *Store) SetDeskEnabled(ctx context.Context, deskID string, enabled bool) (models.Desk, error) {
	return s.scanDesk(s.pool.QueryRow(ctx, `
		UPDATE desks SET enabled = $2
		WHERE desk_id = $1
		RETURNING desk_id, name, enabled, created_on
	`, deskID, enabled))
}

func (s *Store) scanDesk(row pgx.Row) (models.Desk, error) {
	var desk models.Desk
	if err := row.Scan(&desk.DeskID, &desk.Name, &desk.Enabled, &desk.CreatedOn); err != nil {
		return models.Desk{}, mapWriteError(err)
	}
	return desk, nil
}

const tellerColumns = `teller_id, name, email, desk_id, service_ids, enabled, image_url, created_on`

func (s *Store) ListTellers(ctx context.Context) ([]models.Teller, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tellerColumns+` FROM tellers ORDER BY created_on ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tellers := []models.Teller{}
	for rows.Next() {
		teller, err := s.scanTeller(rows)
		if err != nil {
			return nil, err
		}
		tellers = append(tellers, teller)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tellers, nil
}

func (s *Store) CreateTeller(ctx context.Context, teller models.Teller) (models.Teller, error) {
	if teller.ServiceIDs == nil {
		teller.ServiceIDs = []string{}
	}
	return s.scanTeller(s.pool.QueryRow(ctx, `
		INSERT INTO tellers (teller_id, name, email, desk_id, service_ids, enabled, image_url)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING `+tellerColumns,
		uuid.NewString(), teller.Name, teller.Email, teller.DeskID, teller.ServiceIDs, teller.ImageURL))
}

// UpdateTeller replaces the teller's details and its whole service list.
// An empty ImageURL keeps the stored image.
func (s *Store) UpdateTeller(ctx context.Context, teller models.Teller) (models.Teller, error) {
	if teller.ServiceIDs == nil {
		teller.ServiceIDs = []string{}
	}
	return s.scanTeller(s.pool.QueryRow(ctx, `
		UPDATE tellers
		SET name = $2, email = $3, desk_id = $4, service_ids = $5,
		    image_url = CASE WHEN $6 = '' THEN image_url ELSE $6 END
		WHERE teller_id = $1
		RETURNING `+tellerColumns,
		teller.TellerID, teller.Name, teller.Email, teller.DeskID, teller.ServiceIDs, teller.ImageURL))
}

func (s *Store) SetTellerEnabled(ctx context.Context, tellerID string, enabled bool) (models.Teller, error) {
	return s.scanTeller(s.pool.QueryRow(ctx, `
		UPDATE tellers SET enabled = $2
		WHERE teller_id = $1
		RETURNING `+tellerColumns, tellerID, enabled))
}

func (s *Store) scanTeller(row pgx.Row) (models.Teller, error) {
	var teller models.Teller
	if err := row.Scan(&teller.TellerID, &teller.Name, &teller.Email, &teller.DeskID, &teller.ServiceIDs,
		&teller.Enabled, &teller.ImageURL, &teller.CreatedOn); err != nil {
		return models.Teller{}, mapWriteError(err)
	}
	return teller, nil
}

var refTables = map[store.RefKind]struct{ table, id string }{
	store.RefService: {"services", "service_id"},
	store.RefDesk:    {"desks", "desk_id"},
	store.RefTeller:  {"tellers", "teller_id"},
}

func (s *Store) ResolveNames(ctx context.Context, kind store.RefKind, ids []string) (map[string]string, error) {
	ref, ok := refTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s, name FROM %s WHERE %s = ANY($1)`, ref.id, ref.table, ref.id), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) ListOpeningHours(ctx context.Context) ([]models.OpeningHours, error) {
	rows, err := s.pool.Query(ctx, `SELECT day, enabled, start_time, end_time FROM days`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hours := []models.OpeningHours{}
	for rows.Next() {
		var h models.OpeningHours
		if err := rows.Scan(&h.Day, &h.Enabled, &h.StartTime, &h.EndTime); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hours, nil
}

func (s *Store) SaveOpeningHours(ctx context.Context, hours []models.OpeningHours) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, h := range hours {
		if _, err := tx.Exec(ctx, `
			INSERT INTO days (day, enabled, start_time, end_time)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (day) DO UPDATE
			SET enabled = EXCLUDED.enabled, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time
		`, h.Day, h.Enabled, h.StartTime, h.EndTime); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertLog(ctx context.Context, entry models.LogEntry) error {
	if entry.LogID == "" {
		entry.LogID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO logs (log_id, timestamp, level, message, email)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.LogID, entry.Timestamp, entry.Level, entry.Message, entry.Email)
	return err
}

func (s *Store) ListLogs(ctx context.Context, from, to time.Time, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT log_id, timestamp, level, message, email
		FROM logs
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.LogID, &e.Timestamp, &e.Level, &e.Message, &e.Email); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

const adminColumns = `admin_id, email, name, phone, address, avatar_url, password_hash`

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (models.AdminProfile, string, error) {
	return scanAdmin(s.pool.QueryRow(ctx, `
		SELECT `+adminColumns+`
		FROM admins
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)))
}

func (s *Store) GetAdmin(ctx context.Context, adminID string) (models.AdminProfile, string, error) {
	return scanAdmin(s.pool.QueryRow(ctx, `
		SELECT `+adminColumns+`
		FROM admins
		WHERE admin_id = $1
	`, adminID))
}

func scanAdmin(row pgx.Row) (models.AdminProfile, string, error) {
	var admin models.AdminProfile
	var passwordHash string
	if err := row.Scan(&admin.AdminID, &admin.Email, &admin.Name, &admin.Phone, &admin.Address,
		&admin.AvatarURL, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminProfile{}, "", store.ErrNotFound
		}
		return models.AdminProfile{}, "", err
	}
	return admin, passwordHash, nil
}

func (s *Store) UpdateAdminProfile(ctx context.Context, profile models.AdminProfile) (models.AdminProfile, error) {
	updated, _, err := scanAdmin(s.pool.QueryRow(ctx, `
		UPDATE admins
		SET name = $2, phone = $3, address = $4, avatar_url = $5
		WHERE admin_id = $1
		RETURNING `+adminColumns,
		profile.AdminID, profile.Name, profile.Phone, profile.Address, profile.AvatarURL))
	return updated, err
}

func (s *Store) UpdateAdminPassword(ctx context.Context, adminID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE admins SET password_hash = $2 WHERE admin_id = $1`, adminID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// EnsureAdmin creates an admin account, or resets its password when the
// email is already registered.
func (s *Store) EnsureAdmin(ctx context.Context, email, name, passwordHash string) (models.AdminProfile, error) {
	admin, _, err := scanAdmin(s.pool.QueryRow(ctx, `
		INSERT INTO admins (admin_id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lower(email)) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING `+adminColumns,
		uuid.NewString(), strings.TrimSpace(email), name, passwordHash))
	return admin, err
}

func (s *Store) CreateSession(ctx context.Context, adminID string, expiresAt time.Time) (models.Session, error) {
	sessionID := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, admin_id, expires_at)
		VALUES ($1, $2, $3)
	`, sessionID, adminID, expiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{SessionID: sessionID, AdminID: adminID, ExpiresAt: expiresAt}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.AdminProfile, error) {
	var session models.Session
	var admin models.AdminProfile
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.admin_id, s.expires_at,
		       a.admin_id, a.email, a.name, a.phone, a.address, a.avatar_url
		FROM sessions s
		JOIN admins a ON a.admin_id = s.admin_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.AdminID, &session.ExpiresAt, &admin.AdminID, &admin.Email,
		&admin.Name, &admin.Phone, &admin.Address, &admin.AvatarURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.AdminProfile{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.AdminProfile{}, err
	}
	return session, admin, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func mapWriteError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicateName
	}
	return err
}
