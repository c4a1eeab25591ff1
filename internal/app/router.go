package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/controller"
	"github.com/unclebandit/outreach-engine/internal/handler"
)

// Router exposes the admin API and the live event stream.
func (a *App) Router() http.Handler {
	senders := &controller.SenderController{
		SenderService: a.SenderService,
		Scans:         a.Scans,
		Log:           a.Log.Named("http"),
	}
	events := handler.NewEventHandler(a.Hub)
	health := &handler.HealthHandler{DB: a.DB}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.Log.Named("http")))

	r.Get("/health", health.HealthHandler)
	r.Get("/events", events.StreamEventsHandler)

	r.Route("/senders", func(r chi.Router) {
		r.Get("/", senders.ListSenders)
		r.Post("/{id}/pause", senders.PauseSender)
		r.Post("/{id}/resume", senders.ResumeSender)
		r.Get("/{id}/logs", senders.RecentLogs)
		r.Get("/{id}/contacts", senders.Contacts)
		r.Post("/{id}/preview", senders.PersonalizedPreview)
		r.Post("/{id}/scan/{kind}", senders.TriggerScan)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
