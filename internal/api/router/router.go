package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/guarded-reply/internal/channels/line"
	"github.com/wolfman30/guarded-reply/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guarded-reply/internal/http/middleware"
	"github.com/wolfman30/guarded-reply/internal/observability/metrics"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	LineWebhook    *line.WebhookHandler
	WebhookLimiter *httpmiddleware.KeyedLimiter
	Metrics        *metrics.PipelineMetrics
	MetricsHandler http.Handler

	// Ready reports dependency health for /ready; nil means always ready.
	Ready func(ctx context.Context) error

	// Admin routes are mounted only when a secret is configured.
	AdminAuthSecret string
	AdminTenants    *handlers.AdminTenantsHandler
	AdminKnowledge  *handlers.AdminKnowledgeHandler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		public.Get("/ready", readyCheck(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.LineWebhook != nil {
			public.With(
				observeWebhook(cfg.Metrics, line.ChannelName),
				httpmiddleware.RateLimit(cfg.WebhookLimiter, httpmiddleware.TenantKey),
			).Post("/webhooks/line/{tenantID}", cfg.LineWebhook.HandleInbound)
		}
	})

	if cfg.AdminAuthSecret != "" && (cfg.AdminTenants != nil || cfg.AdminKnowledge != nil) {
		r.Route("/admin/tenants/{tenantID}", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if h := cfg.AdminTenants; h != nil {
				admin.Get("/settings", h.GetSettings)
				admin.Put("/settings", h.PutSettings)
				admin.Get("/usage", h.GetUsage)
				admin.Put("/quota", h.PutQuota)
			}
			if h := cfg.AdminKnowledge; h != nil {
				admin.Get("/knowledge", h.ListDocuments)
				admin.Put("/knowledge", h.PutDocuments)
				admin.Delete("/knowledge/{sourceID}", h.DeleteDocument)
			}
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func readyCheck(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// observeWebhook counts webhook responses by status class, including 429s
// from the rate limiter behind it.
func observeWebhook(m *metrics.PipelineMetrics, channel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveWebhook(channel, status)
		})
	}
}
