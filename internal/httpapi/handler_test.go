package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/dashboard-service/internal/account"
	"qms/dashboard-service/internal/admin"
	"qms/dashboard-service/internal/live"
	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/reports"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse"

type memStore struct {
	mu       sync.Mutex
	visits   []models.Visit
	services []models.Service
	desks    []models.Desk
	tellers  []models.Teller
	hours    []models.OpeningHours
	logs     []models.LogEntry
	admin    models.AdminProfile
	hash     string
	sessions map[string]models.Session
	nextID   int
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &memStore{
		admin:    models.AdminProfile{AdminID: "a1", Email: "admin@bank.test", Name: "Admin"},
		hash:     string(hash),
		sessions: map[string]models.Session{},
		services: []models.Service{{ServiceID: "s1", Name: "Deposits", Enabled: true}},
		desks:    []models.Desk{{DeskID: "d1", Name: "Desk 1", Enabled: true}},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return prefix + strings.Repeat("x", m.nextID)
}

func (m *memStore) ListVisits(_ context.Context, filter store.VisitFilter) ([]models.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Visit
	for _, v := range m.visits {
		if len(filter.Statuses) > 0 {
			found := false
			for _, s := range filter.Statuses {
				found = found || s == v.Status
			}
			if !found {
				continue
			}
		}
		ts := v.JoinedOn
		if filter.TimeField == store.CompletedOn {
			if v.CompletedOn == nil {
				continue
			}
			ts = *v.CompletedOn
		}
		if (!filter.From.IsZero() && ts.Before(filter.From)) || (!filter.To.IsZero() && ts.After(filter.To)) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *memStore) ListServices(context.Context) ([]models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Service(nil), m.services...), nil
}

func (m *memStore) CreateService(_ context.Context, name string) (models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc := models.Service{ServiceID: m.id("s"), Name: name, Enabled: true}
	m.services = append(m.services, svc)
	return svc, nil
}

func (m *memStore) RenameService(_ context.Context, serviceID, name string) (models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.services {
		if m.services[i].ServiceID == serviceID {
			m.services[i].Name = name
			return m.services[i], nil
		}
	}
	return models.Service{}, store.ErrNotFound
}

func (m *memStore) SetServiceEnabled(_ context.Context, serviceID string, enabled bool) (models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.services {
		if m.services[i].ServiceID == serviceID {
			m.services[i].Enabled = enabled
			return m.services[i], nil
		}
	}
	return models.Service{}, store.ErrNotFound
}

func (m *memStore) ListDesks(context.Context) ([]models.Desk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Desk(nil), m.desks...), nil
}

func (m *memStore) CreateDesk(_ context.Context, name string) (models.Desk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	desk := models.Desk{DeskID: m.id("d"), Name: name, Enabled: true}
	m.desks = append(m.desks, desk)
	return desk, nil
}

func (m *memStore) RenameDesk(_ context.Context, deskID, name string) (models.Desk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.desks {
		if m.desks[i].DeskID == deskID {
			m.desks[i].Name = name
			return m.desks[i], nil
		}
	}
	return models.Desk{}, store.ErrNotFound
}

func (m *memStore) SetDeskEnabled(_ context.Context, deskID string, enabled bool) (models.Desk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.desks {
		if m.desks[i].DeskID == deskID {
			m.desks[i].Enabled = enabled
			return m.desks[i], nil
		}
	}
	return models.Desk{}, store.ErrNotFound
}

func (m *memStore) ListTellers(context.Context) ([]models.Teller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Teller(nil), m.tellers...), nil
}

func (m *memStore) CreateTeller(_ context.Context, teller models.Teller) (models.Teller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	teller.TellerID = m.id("t")
	m.tellers = append(m.tellers, teller)
	return teller, nil
}

func (m *memStore) UpdateTeller(_ context.Context, teller models.Teller) (models.Teller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tellers {
		if m.tellers[i].TellerID == teller.TellerID {
			m.tellers[i] = teller
			return teller, nil
		}
	}
	return models.Teller{}, store.ErrNotFound
}

func (m *memStore) SetTellerEnabled(_ context.Context, tellerID string, enabled bool) (models.Teller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tellers {
		if m.tellers[i].TellerID == tellerID {
			m.tellers[i].Enabled = enabled
			return m.tellers[i], nil
		}
	}
	return models.Teller{}, store.ErrNotFound
}

func (m *memStore) ResolveNames(context.Context, store.RefKind, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *memStore) ListOpeningHours(context.Context) ([]models.OpeningHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OpeningHours(nil), m.hours...), nil
}

func (m *memStore) SaveOpeningHours(_ context.Context, hours []models.OpeningHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours = append(m.hours, hours...)
	return nil
}

func (m *memStore) InsertLog(_ context.Context, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) ListLogs(context.Context, time.Time, time.Time, int) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LogEntry(nil), m.logs...), nil
}

func (m *memStore) GetAdminByEmail(_ context.Context, email string) (models.AdminProfile, string, error) {
	if !strings.EqualFold(email, m.admin.Email) {
		return models.AdminProfile{}, "", store.ErrNotFound
	}
	return m.admin, m.hash, nil
}

func (m *memStore) GetAdmin(_ context.Context, adminID string) (models.AdminProfile, string, error) {
	if adminID != m.admin.AdminID {
		return models.AdminProfile{}, "", store.ErrNotFound
	}
	return m.admin, m.hash, nil
}

func (m *memStore) UpdateAdminProfile(_ context.Context, profile models.AdminProfile) (models.AdminProfile, error) {
	m.admin = profile
	return profile, nil
}

func (m *memStore) UpdateAdminPassword(_ context.Context, _ string, passwordHash string) error {
	m.hash = passwordHash
	return nil
}

func (m *memStore) CreateSession(_ context.Context, adminID string, expiresAt time.Time) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := models.Session{SessionID: m.id("session-"), AdminID: adminID, ExpiresAt: expiresAt}
	m.sessions[session.SessionID] = session
	return session, nil
}

func (m *memStore) GetSession(_ context.Context, sessionID string) (models.Session, models.AdminProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, models.AdminProfile{}, store.ErrSessionNotFound
	}
	return session, m.admin, nil
}

func (m *memStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

type fakeLive struct {
	projections map[string]live.Projection
}

func (f fakeLive) Current(status string) (live.Projection, bool) {
	proj, ok := f.projections[status]
	return proj, ok
}

func (f fakeLive) Statuses() []string {
	return []string{models.StatusPending, models.StatusWaiting, models.StatusServing}
}

type testServer struct {
	handler http.Handler
	store   *memStore
	session string
}

func newTestServer(t *testing.T, liveSource LiveSource) testServer {
	t.Helper()
	st := newMemStore(t)
	logger := zap.NewNop()
	accounts := account.NewService(st, nil, time.Hour, logger)
	h := NewHandler(Options{
		Reports: reports.NewService(st, time.UTC, logger),
		Admin:   admin.NewService(st, time.UTC, logger),
		Account: accounts,
		Live:    liveSource,
		Logger:  logger,
	})
	session, _, err := accounts.SignIn(context.Background(), "admin@bank.test", testPassword)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	st.logs = nil
	return testServer{handler: AuthMiddleware(accounts, h.Routes()), store: st, session: session.SessionID}
}

func (s testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.session)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responseError {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, nil)
	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"unknown", "Bearer nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/desks", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			srv.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if decodeError(t, rec).Code != "unauthorized" {
				t.Fatalf("unexpected error code")
			}
		})
	}
}

func TestLoginSetsCookieAndMe(t *testing.T) {
	srv := newTestServer(t, nil)
	body := `{"email":"admin@bank.test","password":"` + testPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookie || cookies[0].Value != resp.SessionID {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}

	me := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, me)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "admin@bank.test") {
		t.Fatalf("unexpected /me response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@bank.test","password":"wrong"}`))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	srv := newTestServer(t, nil)
	if rec := srv.do(t, http.MethodPost, "/api/auth/logout", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/api/auth/me", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestCreateDeskDuplicate(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/api/desks", map[string]string{"name": "desk 1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "duplicate_name" || resp.Field != "name" || resp.Message != "A desk with this name already exists." {
		t.Fatalf("unexpected error: %+v", resp)
	}
}

func TestCreateDeskAudited(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/api/desks", map[string]string{"name": "Desk 2"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(srv.store.logs) != 1 || srv.store.logs[0].Email != "admin@bank.test" {
		t.Fatalf("expected audit entry with actor, got %+v", srv.store.logs)
	}
}

func TestDeskRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"rename", http.MethodPut, "/api/desks/d1", map[string]string{"name": "Front"}, http.StatusOK},
		{"rename missing", http.MethodPut, "/api/desks/zzz", map[string]string{"name": "Front 2"}, http.StatusNotFound},
		{"status", http.MethodPut, "/api/desks/d1/status", map[string]bool{"enabled": false}, http.StatusOK},
		{"status without flag", http.MethodPut, "/api/desks/d1/status", map[string]string{}, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/api/desks/d1", map[string]string{"title": "x"}, http.StatusBadRequest},
		{"unknown subpath", http.MethodPut, "/api/desks/d1/other", map[string]string{}, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/desks/d1", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOpeningHoursRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/opening-hours", nil)
	var hours []models.OpeningHours
	if err := json.NewDecoder(rec.Body).Decode(&hours); err != nil || len(hours) != 7 {
		t.Fatalf("expected seven days, got %d (%v)", len(hours), err)
	}

	rec = srv.do(t, http.MethodPut, "/api/opening-hours/monday", map[string]interface{}{
		"enabled": true, "start_time": "17:00", "end_time": "09:00",
	})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Field != "end_time" {
		t.Fatalf("expected end_time validation error, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/opening-hours/universal", map[string]string{"start_time": "08:00", "end_time": "15:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReportsValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	cases := []struct {
		name string
		path string
		want int
	}{
		{"hourly default date", "/api/reports/hourly", http.StatusOK},
		{"hourly bad date", "/api/reports/hourly?date=13-05-2024", http.StatusBadRequest},
		{"weekly", "/api/reports/weekly?week=2024-W20", http.StatusOK},
		{"weekly bad", "/api/reports/weekly?week=2024-20", http.StatusBadRequest},
		{"monthly", "/api/reports/monthly?month=2024-05", http.StatusOK},
		{"range missing end", "/api/reports/range?start=2024-05-01", http.StatusBadRequest},
		{"range reversed", "/api/reports/range?start=2024-05-10&end=2024-05-01", http.StatusBadRequest},
		{"range", "/api/reports/range?start=2024-05-01&end=2024-05-10&services=Deposits", http.StatusOK},
		{"weekday comparison", "/api/reports/weekday-comparison?start=2024-05-01&end=2024-05-31", http.StatusOK},
		{"metrics week", "/api/reports/metrics?period=week&week=2024-W20", http.StatusOK},
		{"metrics bad period", "/api/reports/metrics?period=year", http.StatusBadRequest},
		{"team month", "/api/reports/team?period=month&month=2024-05", http.StatusOK},
		{"export bad format", "/api/reports/export?start=2024-05-01&end=2024-05-02&format=pdf", http.StatusBadRequest},
		{"range at cap", "/api/reports/range?start=2024-01-01&end=2024-12-31", http.StatusOK},
		{"range over cap", "/api/reports/range?start=2024-01-01&end=2025-01-01", http.StatusBadRequest},
		{"unbounded range", "/api/reports/range?start=0001-01-01&end=9999-12-31", http.StatusBadRequest},
		{"weekday comparison over cap", "/api/reports/weekday-comparison?start=2020-01-01&end=2024-01-01", http.StatusBadRequest},
		{"metrics range over cap", "/api/reports/metrics?period=range&start=2020-01-01&end=2024-01-01", http.StatusBadRequest},
		{"export over cap", "/api/reports/export?start=0001-01-01&end=9999-12-31", http.StatusBadRequest},
		{"unknown", "/api/reports/yearly", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tc.path, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHourlyReportBody(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.store.visits = []models.Visit{
		{VisitID: "v1", ServiceID: "s1", Status: models.StatusWaiting, JoinedOn: time.Date(2024, 5, 13, 9, 15, 0, 0, time.UTC)},
		{VisitID: "v2", ServiceID: "gone", Status: models.StatusWaiting, JoinedOn: time.Date(2024, 5, 13, 9, 45, 0, 0, time.UTC)},
	}
	rec := srv.do(t, http.MethodGet, "/api/reports/hourly?date=2024-05-13", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var chart reports.Chart
	if err := json.NewDecoder(rec.Body).Decode(&chart); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chart.Buckets) != 24 || chart.Buckets[9].Totals["Deposits"] != 1 || chart.Buckets[9].Totals[models.UnknownService] != 1 {
		t.Fatalf("unexpected chart: %+v", chart.Buckets[9])
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/reports/export?start=2024-05-01&end=2024-05-02", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "visits_2024-05-01_2024-05-02.csv") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(rec.Body.String(), "visit_id,queue_code") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestLiveProjection(t *testing.T) {
	proj := live.Projection{Status: models.StatusWaiting, Entries: []live.Entry{
		{Visit: models.Visit{VisitID: "v1", DeskID: "d1"}, ServiceName: "Deposits"},
		{Visit: models.Visit{VisitID: "v2", DeskID: "d2"}, ServiceName: "Loans"},
	}}
	srv := newTestServer(t, fakeLive{projections: map[string]live.Projection{models.StatusWaiting: proj}})

	cases := []struct {
		name    string
		path    string
		want    int
		entries int
	}{
		{"all", "/api/live/waiting", http.StatusOK, 2},
		{"by desk", "/api/live/waiting?desk_id=d2", http.StatusOK, 1},
		{"by service", "/api/live/waiting?service=deposits", http.StatusOK, 1},
		{"not loaded", "/api/live/serving", http.StatusServiceUnavailable, 0},
		{"not watched", "/api/live/completed", http.StatusNotFound, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tc.path, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.want != http.StatusOK {
				return
			}
			var got live.Projection
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got.Entries) != tc.entries {
				t.Fatalf("expected %d entries, got %d", tc.entries, len(got.Entries))
			}
		})
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"header", func(r *http.Request) { r.Header.Set("X-Session-ID", " def ") }, "def"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "ghi"}) }, "ghi"},
		{"bearer wins", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer abc")
			r.Header.Set("X-Session-ID", "def")
		}, "abc"},
		{"malformed bearer", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			if got := sessionIDFromRequest(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/live/info?session_id=jkl", nil)
	if got := sessionIDFromRequest(req); got != "jkl" {
		t.Fatalf("expected query session, got %q", got)
	}
}

func TestTokenLimiter(t *testing.T) {
	now := time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 2)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("ip") || !limiter.allow("ip") {
		t.Fatalf("burst should be allowed")
	}
	if limiter.allow("ip") {
		t.Fatalf("third request should be limited")
	}
	if !limiter.allow("other") {
		t.Fatalf("keys are independent")
	}
	now = now.Add(time.Second)
	if !limiter.allow("ip") {
		t.Fatalf("token should refill after a second")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", got)
	}
}

func TestIsPublicEndpoint(t *testing.T) {
	cases := []struct {
		method string
		path   string
		public bool
	}{
		{http.MethodGet, "/healthz", true},
		{http.MethodPost, "/api/auth/login", true},
		{http.MethodGet, "/uploads/avatars/a.png", true},
		{http.MethodGet, "/live/info", true},
		{http.MethodOptions, "/api/desks", true},
		{http.MethodGet, "/api/desks", false},
		{http.MethodPost, "/api/auth/logout", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if got := isPublicEndpoint(req); got != tc.public {
			t.Fatalf("%s %s: expected public=%v, got %v", tc.method, tc.path, tc.public, got)
		}
	}
}
