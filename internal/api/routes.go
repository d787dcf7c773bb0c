package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, gatherer prometheus.Gatherer, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	// Clients written against the original API use trailing slashes.
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Probes and metrics
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/referrals", func(r chi.Router) {
			r.Get("/", h.ListReferrals)
			r.Post("/", h.CreateReferral)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetReferral)
				r.Patch("/", h.UpdateReferral)
				r.Delete("/", h.DeleteReferral)
				r.Post("/resend", h.ResendInvitation)
			})
		})

		r.Get("/analytics", h.GetAnalytics)
		r.Get("/analytics/snapshots", h.ListSnapshots)
		r.Post("/analytics/snapshots", h.CreateSnapshot)
	})

	return r
}
