package account

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	admin    models.AdminProfile
	hash     string
	sessions map[string]models.Session
	logs     []models.LogEntry
	newHash  string
	deleted  []string
}

func newFakeStore(t *testing.T, password string) *fakeStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &fakeStore{
		admin:    models.AdminProfile{AdminID: "a1", Email: "admin@bank.test", Name: "Admin"},
		hash:     string(hash),
		sessions: map[string]models.Session{},
	}
}

func (f *fakeStore) GetAdminByEmail(_ context.Context, email string) (models.AdminProfile, string, error) {
	if !strings.EqualFold(email, f.admin.Email) {
		return models.AdminProfile{}, "", store.ErrNotFound
	}
	return f.admin, f.hash, nil
}

func (f *fakeStore) GetAdmin(_ context.Context, adminID string) (models.AdminProfile, string, error) {
	if adminID != f.admin.AdminID {
		return models.AdminProfile{}, "", store.ErrNotFound
	}
	return f.admin, f.hash, nil
}

func (f *fakeStore) UpdateAdminProfile(_ context.Context, profile models.AdminProfile) (models.AdminProfile, error) {
	f.admin = profile
	return profile, nil
}

func (f *fakeStore) UpdateAdminPassword(_ context.Context, _ string, passwordHash string) error {
	f.newHash = passwordHash
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, adminID string, expiresAt time.Time) (models.Session, error) {
	session := models.Session{SessionID: "s1", AdminID: adminID, ExpiresAt: expiresAt}
	f.sessions[session.SessionID] = session
	return session, nil
}

func (f *fakeStore) GetSession(_ context.Context, sessionID string) (models.Session, models.AdminProfile, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return models.Session{}, models.AdminProfile{}, store.ErrSessionNotFound
	}
	return session, f.admin, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeStore) InsertLog(_ context.Context, entry models.LogEntry) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakeImages struct {
	folder string
	err    error
}

func (f *fakeImages) SaveImage(folder string, r io.Reader) (string, error) {
	f.folder = folder
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.ReadAll(r)
	return "/uploads/" + folder + "/pic.png", nil
}

func TestSignIn(t *testing.T) {
	st := newFakeStore(t, "correct-horse")
	svc := NewService(st, &fakeImages{}, 8*time.Hour, zap.NewNop())
	now := time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	cases := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "ADMIN@bank.test ", "correct-horse", nil},
		{"wrong password", "admin@bank.test", "nope", ErrInvalidCredentials},
		{"unknown email", "other@bank.test", "correct-horse", ErrInvalidCredentials},
		{"empty", "", "", ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, admin, err := svc.SignIn(context.Background(), tc.email, tc.password)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if admin.AdminID != "a1" || !session.ExpiresAt.Equal(now.Add(8*time.Hour)) {
				t.Fatalf("unexpected session %+v for %+v", session, admin)
			}
		})
	}
}

func TestSignOutDeletesSession(t *testing.T) {
	st := newFakeStore(t, "correct-horse")
	svc := NewService(st, &fakeImages{}, time.Hour, zap.NewNop())
	session, admin, err := svc.SignIn(context.Background(), "admin@bank.test", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := svc.SignOut(context.Background(), session.SessionID, admin); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), session.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if len(st.logs) != 2 || st.logs[1].Message != "Signed out" {
		t.Fatalf("unexpected audit: %+v", st.logs)
	}
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	st := newFakeStore(t, "correct-horse")
	svc := NewService(st, &fakeImages{}, time.Hour, zap.NewNop())

	if err := svc.ChangePassword(context.Background(), "a1", "wrong", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), "a1", "correct-horse", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if st.newHash != "" {
		t.Fatalf("password must not change on failure")
	}
	if err := svc.ChangePassword(context.Background(), "a1", "correct-horse", "new-password-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(st.newHash), []byte("new-password-1")) != nil {
		t.Fatalf("stored hash does not match new password")
	}
}

func TestUpdateProfile(t *testing.T) {
	st := newFakeStore(t, "correct-horse")
	svc := NewService(st, &fakeImages{}, time.Hour, zap.NewNop())

	if _, err := svc.UpdateProfile(context.Background(), "a1", ProfileInput{Name: "  "}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected invalid profile, got %v", err)
	}
	updated, err := svc.UpdateProfile(context.Background(), "a1", ProfileInput{Name: " Maria ", Phone: "555", Address: "Main St"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Maria" || updated.Email != "admin@bank.test" || updated.Phone != "555" {
		t.Fatalf("unexpected profile: %+v", updated)
	}
}

func TestUploadAvatar(t *testing.T) {
	st := newFakeStore(t, "correct-horse")
	images := &fakeImages{}
	svc := NewService(st, images, time.Hour, zap.NewNop())

	updated, err := svc.UploadAvatar(context.Background(), "a1", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if images.folder != avatarFolder || updated.AvatarURL != "/uploads/avatars/pic.png" {
		t.Fatalf("unexpected avatar: %+v", updated)
	}

	images.err = errors.New("unsupported")
	if _, err := svc.UploadAvatar(context.Background(), "a1", strings.NewReader("x")); err == nil {
		t.Fatalf("expected error")
	}
	if st.admin.AvatarURL != "/uploads/avatars/pic.png" {
		t.Fatalf("failed upload must keep the old avatar")
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	hash, err := HashPassword("long-enough")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("long-enough")) != nil {
		t.Fatalf("hash mismatch")
	}
}
