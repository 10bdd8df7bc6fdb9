package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"qms/dashboard-service/internal/hub"
	"qms/dashboard-service/internal/live"
	"qms/dashboard-service/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const livePrefix = "/live"

// handleLive serves GET /api/live/{status}?desk_id=&service=.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/live/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "live_unavailable", "live view is not running")
		return
	}
	status := parts[0]
	if !h.watched(status) {
		writeError(w, http.StatusNotFound, "unknown_status", "status is not watched")
		return
	}
	proj, ok := h.live.Current(status)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "live view is still loading")
		return
	}
	filter := live.Filter{
		DeskID:      strings.TrimSpace(r.URL.Query().Get("desk_id")),
		ServiceName: strings.TrimSpace(r.URL.Query().Get("service")),
	}
	writeJSON(w, http.StatusOK, proj.Filter(filter))
}

func (h *Handler) watched(status string) bool {
	for _, s := range h.live.Statuses() {
		if s == status {
			return true
		}
	}
	return false
}

// liveSocket pushes projections to SockJS clients. A client picks a status
// and optional filter with {"action":"subscribe",...} and receives the
// current projection at once, then every update. The session is checked on
// connect, on every message and on a fixed interval; a revoked session
// closes the socket with 4002.
func (h *Handler) liveSocket() http.Handler {
	return sockjs.NewHandler(livePrefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		sessionID := sessionIDFromRequest(session.Request())
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := h.account.Authenticate(ctx, sessionID)
		cancel()
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.hub.Register(client)
		defer h.hub.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(h.sessionRecheck)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if !h.sessionValid(sessionID) {
						_ = session.Close(4002, "invalid session")
						return
					}
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			if !h.sessionValid(sessionID) {
				_ = session.Close(4002, "invalid session")
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.hub.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			if !h.watched(parsed.Status) {
				_ = session.Close(4003, "unknown status")
				return
			}
			sub := hub.Subscription{Status: parsed.Status, DeskID: parsed.DeskID, ServiceName: parsed.Service}
			h.hub.UpdateSubscription(client, sub)
			h.pushCurrent(client, sub)
		}
	})
}

// sessionValid reports whether an open socket's session still resolves to
// an admin. Backend failures are logged and count as valid.
func (h *Handler) sessionValid(sessionID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := h.account.Authenticate(ctx, sessionID)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return false
	}
	h.logger.Warn("live session check", zap.Error(err))
	return true
}

func (h *Handler) pushCurrent(client *hub.Client, sub hub.Subscription) {
	proj, ok := h.live.Current(sub.Status)
	if !ok {
		return
	}
	payload, err := hub.Encode(proj.Filter(live.Filter{DeskID: sub.DeskID, ServiceName: sub.ServiceName}))
	if err != nil {
		h.logger.Error("encode projection", zap.Error(err))
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}
