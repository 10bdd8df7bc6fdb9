package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"
)

const sessionCookie = "dashboard_session"

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	Admin   models.AdminProfile
}

// Authenticator resolves a session id to the signed-in admin.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (models.Session, models.AdminProfile, error)
}

func AuthMiddleware(auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, admin, err := auth.Authenticate(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, Admin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// requireAdmin writes 401 when the request carries no signed-in admin.
func requireAdmin(w http.ResponseWriter, r *http.Request) (authInfo, bool) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return authInfo{}, false
	}
	return info, true
}

// actorEmail is the email recorded on audit entries.
func actorEmail(r *http.Request) string {
	info, _ := authFromContext(r.Context())
	return info.Admin.Email
}

// sessionIDFromRequest accepts a bearer token, the X-Session-ID header, the
// session cookie or a session_id query parameter, in that order. SockJS
// transports can only use the last two.
func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if header := strings.TrimSpace(r.Header.Get("X-Session-ID")); header != "" {
		return header
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/auth/login":
		return true
	}
	// The live socket authenticates its own sessions.
	if strings.HasPrefix(r.URL.Path, "/uploads/") || strings.HasPrefix(r.URL.Path, livePrefix+"/") {
		return true
	}
	return r.Method == http.MethodOptions
}
