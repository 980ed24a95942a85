/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in request logs
  2. RealIP:     Client address behind the desk proxy
  3. Requests:   zap request logging (logger package)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the desk frontend

ROUTE GROUPS:
  /api/gate/*           Turnstile scans and access history
  /api/sauna/*          Lockers and key custody
  /api/fines/*          Lost-key fines
  /api/kiosks/*         Kiosk catalogue and availability
  /api/reservations/*   Booking, config, window, receipts
  /api/scenarios/*      Demo data
  /api/admin/*          Operational triggers
  /metrics              Prometheus
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/club-engine/logger"
	"github.com/warp/club-engine/metrics"
)

// RouterConfig carries the router's deployment knobs.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Requests(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Gate routes
		r.Route("/gate", func(r chi.Router) {
			r.Post("/evaluate", h.Evaluate)
			r.Post("/scan", h.Scan)
			r.Post("/access", h.LogAccess)
			r.Get("/{location}/present", h.Present)
			r.Get("/{location}/stats", h.Stats)
			r.Get("/{location}/records", h.Records)
		})

		// Sauna routes
		r.Route("/sauna", func(r chi.Router) {
			r.Get("/lockers", h.ListLockers)
			r.Post("/lockers", h.AddLockers)
			r.Put("/lockers/{id}/status", h.SetLockerStatus)
			r.Delete("/lockers/{id}", h.RemoveLocker)
			r.Post("/usages", h.AssignLocker)
			r.Get("/usages/open", h.OpenUsages)
			r.Post("/usages/{id}/release", h.ReleaseLocker)
		})

		// Fine routes
		r.Route("/fines", func(r chi.Router) {
			r.Get("/", h.ListFines)
			r.Post("/{id}/status", h.SetFineStatus)
		})

		// Kiosk routes
		r.Route("/kiosks", func(r chi.Router) {
			r.Get("/", h.ListKiosks)
			r.Post("/", h.SaveKiosk)
			r.Get("/available", h.AvailableKiosks)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Get("/config", h.GetReservationConfig)
			r.Put("/config", h.UpdateReservationConfig)
			r.Get("/window", h.GetWindow)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/use", h.UseReservation)
			r.Get("/{id}/receipt", h.GetReceipt)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}
