package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaycore/relay/internal/observability"
)

type RouterConfig struct {
	Handler       *Handler
	HealthHandler *observability.HealthHandler
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if cfg.Logger != nil {
		r.Use(observability.LoggingMiddleware(cfg.Logger))
	}

	if cfg.Metrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", cfg.HealthHandler.Health)
	r.Get("/ready", cfg.HealthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks/{id}", func(r chi.Router) {
		r.Get("/policy", cfg.Handler.GetRetryPolicy)
		r.Put("/policy", cfg.Handler.SetRetryPolicy)

		r.Post("/attempts", cfg.Handler.RecordAttempt)
		r.Get("/attempts", cfg.Handler.GetRetryHistory)
		r.Get("/backoff-schedule", cfg.Handler.GetBackoffSchedule)
		r.Delete("/retries", cfg.Handler.CancelRetries)

		r.Post("/replay", cfg.Handler.ReplayWebhook)
		r.Post("/replay/edited", cfg.Handler.ReplayWithEditedPayload)
		r.Get("/replays", cfg.Handler.GetReplayHistory)

		r.Get("/stats", cfg.Handler.GetWebhookStats)
	})

	r.Route("/replays", func(r chi.Router) {
		r.Post("/batch", cfg.Handler.BatchReplay)
		r.Post("/validate", cfg.Handler.ValidatePayload)
		r.Get("/stats", cfg.Handler.GetReplayStats)
		r.Get("/{id}", cfg.Handler.GetReplayLog)
	})

	r.Route("/attempts", func(r chi.Router) {
		r.Get("/pending", cfg.Handler.GetPendingRetries)
		r.Get("/stats", cfg.Handler.GetRetryStats)
		r.Get("/export", cfg.Handler.ExportRetryLogs)
		r.Post("/cleanup", cfg.Handler.CleanupOldAttempts)
	})

	r.Get("/stats", cfg.Handler.GetStats)
	r.Get("/events/recent", cfg.Handler.GetRecentEvents)

	r.Route("/logs", func(r chi.Router) {
		r.Get("/", cfg.Handler.FilterLogs)
		r.Get("/export", cfg.Handler.ExportLogs)
		r.Get("/event-types", cfg.Handler.GetEventTypeStats)
		r.Get("/statuses", cfg.Handler.GetStatusStats)
	})

	return r
}
