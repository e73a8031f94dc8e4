// Package router assembles the HTTP surface of the settlement API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careslot/careslot-platform/internal/http/handlers"
	httpmiddleware "github.com/careslot/careslot-platform/internal/http/middleware"
	"github.com/careslot/careslot-platform/internal/payments"
	"github.com/careslot/careslot-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Claims             *handlers.ClaimsHandler
	GatewayWebhook     *payments.WebhookHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.GatewayWebhook != nil {
			public.Post("/webhooks/gateway", cfg.GatewayWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// API endpoints
	r.Route("/api", func(api chi.Router) {
		if cfg.Appointments != nil {
			api.Route("/appointments", func(appts chi.Router) {
				appts.Post("/", cfg.Appointments.Book)
				appts.Get("/{id}", cfg.Appointments.Get)
				appts.Post("/{id}/cancel", cfg.Appointments.Cancel)
				appts.Post("/{id}/reschedule", cfg.Appointments.Reschedule)
				appts.Get("/{id}/audit", cfg.Appointments.AuditTrail)
			})
		}
		if cfg.Claims != nil {
			api.Route("/patients/{id}", func(p chi.Router) {
				p.Put("/wallet", cfg.Claims.LinkWallet)
				p.Post("/claims", cfg.Claims.Claim)
			})
		}
	})

	return r
}
