// internal/handler/event_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/unclebandit/outreach-engine/internal/sse"
)

// EventHandler streams outreach events to dashboards
type EventHandler struct {
	Hub *sse.Hub
}

func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{Hub: hub}
}

// StreamEventsHandler serves GET /events. ?sender_id narrows the stream to
// one sender.
func (h *EventHandler) StreamEventsHandler(w http.ResponseWriter, r *http.Request) {
	key := sse.AllSenders
	if raw := r.URL.Query().Get("sender_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			http.Error(w, "invalid sender_id", http.StatusBadRequest)
			return
		}
		key = sse.SenderKey(id)
	}
	h.Hub.Stream(w, r, key)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the process can reach its database
type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			status, code = "db unavailable", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
