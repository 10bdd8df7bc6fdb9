package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"qms/dashboard-service/internal/admin"
	"qms/dashboard-service/internal/filestore"
	"qms/dashboard-service/internal/models"
)

const tellerImageFolder = "tellers"

type nameRequest struct {
	Name string `json:"name"`
}

type statusRequest struct {
	Enabled *bool `json:"enabled"`
}

type universalHoursRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *Handler) handleDesks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		desks, err := h.admin.ListDesks(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, desks)
	case http.MethodPost:
		var req nameRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		desk, err := h.admin.CreateDesk(r.Context(), actorEmail(r), req.Name)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, desk)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleDesk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/desks/")
	switch {
	case len(parts) == 1:
		var req nameRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		desk, err := h.admin.RenameDesk(r.Context(), actorEmail(r), parts[0], req.Name)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, desk)
	case len(parts) == 2 && parts[1] == "status":
		enabled, ok := decodeStatus(w, r)
		if !ok {
			return
		}
		desk, err := h.admin.SetDeskEnabled(r.Context(), actorEmail(r), parts[0], enabled)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, desk)
	default:
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.admin.ListServices(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		var req nameRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		svc, err := h.admin.CreateService(r.Context(), actorEmail(r), req.Name)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, svc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/services/")
	switch {
	case len(parts) == 1:
		var req nameRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		svc, err := h.admin.RenameService(r.Context(), actorEmail(r), parts[0], req.Name)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case len(parts) == 2 && parts[1] == "status":
		enabled, ok := decodeStatus(w, r)
		if !ok {
			return
		}
		svc, err := h.admin.SetServiceEnabled(r.Context(), actorEmail(r), parts[0], enabled)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	default:
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (h *Handler) handleTellers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tellers, err := h.admin.ListTellers(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tellers)
	case http.MethodPost:
		in, ok := h.decodeTeller(w, r)
		if !ok {
			return
		}
		teller, err := h.admin.CreateTeller(r.Context(), actorEmail(r), in)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, teller)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleTeller(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/tellers/")
	switch {
	case len(parts) == 1:
		in, ok := h.decodeTeller(w, r)
		if !ok {
			return
		}
		teller, err := h.admin.UpdateTeller(r.Context(), actorEmail(r), parts[0], in)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, teller)
	case len(parts) == 2 && parts[1] == "status":
		enabled, ok := decodeStatus(w, r)
		if !ok {
			return
		}
		teller, err := h.admin.SetTellerEnabled(r.Context(), actorEmail(r), parts[0], enabled)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, teller)
	default:
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	}
}

// decodeTeller reads a teller from JSON or from a multipart form with an
// optional image part.
func (h *Handler) decodeTeller(w http.ResponseWriter, r *http.Request) (admin.TellerInput, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var in admin.TellerInput
		return in, decodeRequest(w, r, &in)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return admin.TellerInput{}, false
	}
	in := admin.TellerInput{
		Name:   r.FormValue("name"),
		Email:  r.FormValue("email"),
		DeskID: r.FormValue("desk_id"),
	}
	for _, value := range r.MultipartForm.Value["service_ids"] {
		in.ServiceIDs = append(in.ServiceIDs, strings.Split(value, ",")...)
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, true
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image upload")
		return admin.TellerInput{}, false
	}
	defer file.Close()
	if h.images == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads_disabled", "image uploads are disabled")
		return admin.TellerInput{}, false
	}
	url, err := h.images.SaveImage(tellerImageFolder, file)
	if err != nil {
		if errors.Is(err, filestore.ErrUnsupportedType) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", "image must be a PNG, JPEG, GIF or WebP file")
			return admin.TellerInput{}, false
		}
		h.writeServiceError(w, r, err)
		return admin.TellerInput{}, false
	}
	in.ImageURL = url
	return in, true
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req statusRequest
	if !decodeRequest(w, r, &req) {
		return false, false
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "enabled is required")
		return false, false
	}
	return *req.Enabled, true
}

func (h *Handler) handleOpeningHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	hours, err := h.admin.OpeningHours(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hours)
}

func (h *Handler) handleOpeningHoursDay(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/opening-hours/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if parts[0] == "universal" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req universalHoursRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		hours, err := h.admin.ApplyUniversalHours(r.Context(), actorEmail(r), req.StartTime, req.EndTime)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hours)
		return
	}

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.OpeningHours
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Day = parts[0]
	hours, err := h.admin.UpdateOpeningHours(r.Context(), actorEmail(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hours)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	day, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	logs, err := h.admin.Logs(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}
