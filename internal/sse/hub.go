// Package sse fans outreach events out to server-sent-event streams.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// AllSenders subscribes to the events of every sender.
const AllSenders = "*"

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}

	// PingInterval is how often idle streams get a keep-alive comment.
	PingInterval time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subs:         make(map[string]map[chan []byte]struct{}),
		PingInterval: 20 * time.Second,
	}
}

// SenderKey is the subscription key of one sender's events.
func SenderKey(senderID int) string {
	return strconv.Itoa(senderID)
}

func (h *Hub) Subscribe(key string) (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if _, ok := h.subs[key]; !ok {
		h.subs[key] = make(map[chan []byte]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subscribers, ok := h.subs[key]; ok {
			delete(subscribers, ch)
			if len(subscribers) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Subscribers counts open streams for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Publish sends ev to the streams of its sender and to AllSenders streams.
// Slow streams miss events rather than block the publisher.
func (h *Hub) Publish(ev model.OutreachEvent) {
	h.broadcast([]string{SenderKey(ev.SenderID), AllSenders}, encodeEvent(ev))
}

func (h *Hub) broadcast(keys []string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range keys {
		for ch := range h.subs[key] {
			select {
			case ch <- payload:
			default:
			}
		}
	}
}

func encodeEvent(ev model.OutreachEvent) []byte {
	data, _ := json.Marshal(ev)
	return []byte(fmt.Sprintf("event: outreach\ndata: %s\n\n", data))
}

// Stream serves key's events to w until the client goes away.
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := h.Subscribe(key)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}
