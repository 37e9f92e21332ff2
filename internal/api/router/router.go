package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wa-navigator/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-navigator/internal/http/middleware"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const readyTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.WhatsAppWebhookHandler
	Admin          *handlers.AdminChatbotHandler
	MetricsHandler http.Handler
	// AdminAuthSecret protects /api with AdminJWT when set.
	AdminAuthSecret string
	// AdminCORSOrigins lets a browser dashboard call /api.
	AdminCORSOrigins []string
	// WebhookRate and WebhookBurst limit POST /webhook per client; zero
	// disables limiting.
	WebhookRate  float64
	WebhookBurst int
	// Ready backs GET /ready, e.g. a database ping.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Webhook == nil {
		panic("router: webhook handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), readyTimeout)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhook", func(wh chi.Router) {
		wh.Get("/", cfg.Webhook.Verify)
		wh.Get("/health", cfg.Webhook.Health)
		wh.With(httpmiddleware.RateLimit(cfg.WebhookRate, cfg.WebhookBurst)).Post("/", cfg.Webhook.Receive)
	})

	if cfg.Admin != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.AdminCORS(cfg.AdminCORSOrigins))
			api.Get("/health", cfg.Admin.Health)
			api.Group(func(admin chi.Router) {
				if cfg.AdminAuthSecret != "" {
					admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
				}
				admin.Post("/send-message", cfg.Admin.SendMessage)
				admin.Post("/send-button-message", cfg.Admin.SendButtonMessage)
				admin.Get("/messages", cfg.Admin.Messages)
				admin.Get("/messages/{phoneNumber}", cfg.Admin.PhoneMessages)
				admin.Get("/sessions", cfg.Admin.Sessions)
				admin.Get("/stats", cfg.Admin.Stats)
				admin.Route("/session/{phoneNumber}", func(s chi.Router) {
					s.Get("/", cfg.Admin.Session)
					s.Post("/reset", cfg.Admin.ResetSession)
					s.Post("/end", cfg.Admin.EndSession)
					s.Put("/preferences", cfg.Admin.UpdatePreferences)
				})
			})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
