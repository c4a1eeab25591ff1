// internal/controller/sender_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/service"
)

type SenderController struct {
	SenderService *service.SenderService
	// Scans receives manual scan requests; nil disables the endpoint.
	Scans chan<- service.ScanJob
	Log   *zap.Logger
}

func (c *SenderController) ListSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := c.SenderService.ListSenders(r.Context())
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": senders})
}

func (c *SenderController) PauseSender(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, true)
}

func (c *SenderController) ResumeSender(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, false)
}

func (c *SenderController) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id, ok := senderID(w, r)
	if !ok {
		return
	}
	sender, err := c.SenderService.SetPaused(r.Context(), id, paused)
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.logger().Info("sender updated", zap.Int("sender_id", id), zap.Bool("paused", paused))
	writeJSON(w, http.StatusOK, sender)
}

// RecentLogs returns the newest log entries; ?limit caps the count at 200.
func (c *SenderController) RecentLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := senderID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := c.SenderService.RecentLogs(r.Context(), id, limit)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": logs})
}

func (c *SenderController) Contacts(w http.ResponseWriter, r *http.Request) {
	id, ok := senderID(w, r)
	if !ok {
		return
	}
	contacts, err := c.SenderService.Contacts(r.Context(), id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": contacts})
}

func (c *SenderController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := senderID(w, r)
	if !ok {
		return
	}

	var body struct {
		Position         int     `json:"position"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	preview, err := c.SenderService.RenderPreview(r.Context(), id, body.Position, body.OverrideTemplate)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"preview":       preview,
		"used_template": body.OverrideTemplate,
	})
}

// TriggerScan queues a reply or bounce scan for the sender.
func (c *SenderController) TriggerScan(w http.ResponseWriter, r *http.Request) {
	id, ok := senderID(w, r)
	if !ok {
		return
	}
	kind, err := service.ParseScanKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := c.SenderService.SenderRepo.GetByID(r.Context(), id); err != nil {
		c.writeError(w, err)
		return
	}
	if c.Scans == nil {
		http.Error(w, "scans are not enabled", http.StatusServiceUnavailable)
		return
	}

	job := service.ScanJob{SenderID: id, Kind: kind}
	select {
	case c.Scans <- job:
	default:
		http.Error(w, "scan queue is full", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": job})
}

func senderID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid sender id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (c *SenderController) writeError(w http.ResponseWriter, err error) {
	var contactErr *appErrors.ErrContactNotFound
	switch {
	case appErrors.IsSenderNotFound(err), errors.As(err, &contactErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, appErrors.ErrLedgerNotConfigured):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		c.logger().Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (c *SenderController) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
