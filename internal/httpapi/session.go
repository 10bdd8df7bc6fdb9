package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"qms/dashboard-service/internal/account"
	"qms/dashboard-service/internal/filestore"
	"qms/dashboard-service/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string              `json:"session_id"`
	ExpiresAt string              `json:"expires_at"`
	Admin     models.AdminProfile `json:"admin"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	session, admin, err := h.account.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: session.SessionID,
		ExpiresAt: formatTime(session.ExpiresAt),
		Admin:     admin,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := h.account.SignOut(r.Context(), info.Session.SessionID, info.Admin); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: info.Session.SessionID,
		ExpiresAt: formatTime(info.Session.ExpiresAt),
		Admin:     info.Admin,
	})
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	err := h.account.ChangePassword(r.Context(), info.Admin.AdminID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, "invalid_credentials", "current password is incorrect")
	case errors.Is(err, account.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
	default:
		h.writeServiceError(w, r, err)
	}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	info, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		profile, err := h.account.Profile(r.Context(), info.Admin.AdminID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var req account.ProfileInput
		if !decodeRequest(w, r, &req) {
			return
		}
		profile, err := h.account.UpdateProfile(r.Context(), info.Admin.AdminID, req)
		if err != nil {
			if errors.Is(err, account.ErrInvalidProfile) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field file is required")
		return
	}
	defer file.Close()

	profile, err := h.account.UploadAvatar(r.Context(), info.Admin.AdminID, file)
	if err != nil {
		if errors.Is(err, filestore.ErrUnsupportedType) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", "file must be a PNG, JPEG, GIF or WebP image")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
