package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidProfile     = errors.New("name is required")
)

const (
	minPasswordLength = 8
	avatarFolder      = "avatars"
)

type Store interface {
	store.AccountStore
	InsertLog(ctx context.Context, entry models.LogEntry) error
}

// Images stores uploaded pictures and returns their public URL.
type Images interface {
	SaveImage(folder string, r io.Reader) (string, error)
}

type Service struct {
	store      Store
	images     Images
	sessionTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(st Store, images Images, sessionTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{store: st, images: images, sessionTTL: sessionTTL, now: time.Now, logger: logger}
}

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SignIn checks the password and opens a session. Unknown emails and wrong
// passwords give the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.Session, models.AdminProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.Session{}, models.AdminProfile{}, ErrInvalidCredentials
	}
	admin, hash, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Session{}, models.AdminProfile{}, ErrInvalidCredentials
		}
		return models.Session{}, models.AdminProfile{}, fmt.Errorf("get admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.logger.Info("sign-in rejected", zap.String("email", email))
		return models.Session{}, models.AdminProfile{}, ErrInvalidCredentials
	}
	session, err := s.store.CreateSession(ctx, admin.AdminID, s.now().Add(s.sessionTTL).UTC())
	if err != nil {
		return models.Session{}, models.AdminProfile{}, fmt.Errorf("create session: %w", err)
	}
	s.audit(ctx, admin.Email, "Signed in")
	return session, admin, nil
}

func (s *Service) SignOut(ctx context.Context, sessionID string, admin models.AdminProfile) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.audit(ctx, admin.Email, "Signed out")
	return nil
}

// Authenticate resolves a session id to its admin.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (models.Session, models.AdminProfile, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ChangePassword re-checks the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, adminID, current, next string) error {
	admin, hash, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		return fmt.Errorf("get admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	newHash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdateAdminPassword(ctx, adminID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.audit(ctx, admin.Email, "Password changed")
	return nil
}

func (s *Service) Profile(ctx context.Context, adminID string) (models.AdminProfile, error) {
	admin, _, err := s.store.GetAdmin(ctx, adminID)
	return admin, err
}

type ProfileInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (s *Service) UpdateProfile(ctx context.Context, adminID string, in ProfileInput) (models.AdminProfile, error) {
	admin, _, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		return models.AdminProfile{}, fmt.Errorf("get admin: %w", err)
	}
	admin.Name = strings.TrimSpace(in.Name)
	admin.Phone = strings.TrimSpace(in.Phone)
	admin.Address = strings.TrimSpace(in.Address)
	if admin.Name == "" {
		return models.AdminProfile{}, ErrInvalidProfile
	}
	updated, err := s.store.UpdateAdminProfile(ctx, admin)
	if err != nil {
		return models.AdminProfile{}, fmt.Errorf("update profile: %w", err)
	}
	s.audit(ctx, updated.Email, "Profile updated")
	return updated, nil
}

// UploadAvatar stores a new profile picture and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, adminID string, r io.Reader) (models.AdminProfile, error) {
	admin, _, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		return models.AdminProfile{}, fmt.Errorf("get admin: %w", err)
	}
	url, err := s.images.SaveImage(avatarFolder, r)
	if err != nil {
		return models.AdminProfile{}, err
	}
	admin.AvatarURL = url
	updated, err := s.store.UpdateAdminProfile(ctx, admin)
	if err != nil {
		return models.AdminProfile{}, fmt.Errorf("update profile: %w", err)
	}
	s.audit(ctx, updated.Email, "Profile picture updated")
	return updated, nil
}

func (s *Service) audit(ctx context.Context, email, message string) {
	entry := models.LogEntry{Timestamp: s.now().UTC(), Level: models.LevelInfo, Message: message, Email: email}
	if err := s.store.InsertLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err))
	}
}
