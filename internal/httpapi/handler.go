package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"strings"
	"time"

	"qms/dashboard-service/internal/account"
	"qms/dashboard-service/internal/admin"
	"qms/dashboard-service/internal/hub"
	"qms/dashboard-service/internal/live"
	"qms/dashboard-service/internal/reports"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

const (
	maxUploadBytes = 5 << 20
	// sessionRecheck is how often an open live socket re-validates its
	// session.
	sessionRecheck = time.Minute
)

// LiveSource serves the latest live projection per status.
type LiveSource interface {
	Current(status string) (live.Projection, bool)
	Statuses() []string
}

// Images stores uploaded pictures and returns their public URL.
type Images interface {
	SaveImage(folder string, r io.Reader) (string, error)
}

type Options struct {
	Reports *reports.Service
	Admin   *admin.Service
	Account *account.Service
	Images  Images
	Live    LiveSource
	Hub     *hub.Hub
	Logger  *zap.Logger
	// UploadDir is served read-only under UploadPath when both are set.
	UploadDir  string
	UploadPath string
}

type Handler struct {
	reports    *reports.Service
	admin      *admin.Service
	account    *account.Service
	images     Images
	live       LiveSource
	hub        *hub.Hub
	logger     *zap.Logger
	uploadDir  string
	uploadPath string

	sessionRecheck time.Duration
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		reports:    opts.Reports,
		admin:      opts.Admin,
		account:    opts.Account,
		images:     opts.Images,
		live:       opts.Live,
		hub:        opts.Hub,
		logger:     logger,
		uploadDir:  opts.UploadDir,
		uploadPath: opts.UploadPath,

		sessionRecheck: sessionRecheck,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)

	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/auth/password", h.handlePassword)
	mux.HandleFunc("/api/admin/profile", h.handleProfile)
	mux.HandleFunc("/api/admin/profile/avatar", h.handleAvatar)

	mux.HandleFunc("/api/desks", h.handleDesks)
	mux.HandleFunc("/api/desks/", h.handleDesk)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/services/", h.handleService)
	mux.HandleFunc("/api/tellers", h.handleTellers)
	mux.HandleFunc("/api/tellers/", h.handleTeller)
	mux.HandleFunc("/api/opening-hours", h.handleOpeningHours)
	mux.HandleFunc("/api/opening-hours/", h.handleOpeningHoursDay)
	mux.HandleFunc("/api/logs", h.handleLogs)

	mux.HandleFunc("/api/visits", h.handleVisits)
	mux.HandleFunc("/api/reports/", h.handleReport)
	mux.HandleFunc("/api/overview/today", h.handleOverview)
	mux.HandleFunc("/api/live/", h.handleLive)
	if h.hub != nil && h.live != nil {
		mux.Handle(livePrefix+"/", h.liveSocket())
	}
	if h.uploadDir != "" && strings.HasPrefix(h.uploadPath, "/") {
		prefix := strings.TrimSuffix(h.uploadPath, "/") + "/"
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(h.uploadDir))))
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeServiceError maps domain errors onto the error envelope.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *admin.ValidationError
	switch {
	case errors.As(err, &verr):
		status, code := http.StatusBadRequest, "invalid_request"
		if errors.Is(err, admin.ErrDuplicateName) {
			status, code = http.StatusConflict, "duplicate_name"
		}
		writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: verr.Message, Field: verr.Field}})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// pathParts splits the path below prefix, e.g. "/api/desks/<id>/status"
// gives [<id> status].
func pathParts(r *http.Request, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}
