/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /health               Liveness probe
  /metrics              Prometheus exposition
  /api/v1/overview      KPI totals for a filtered view
  /api/v1/records       Scored analysis rows
  /api/v1/anomalies     Flagged rows, most anomalous first
  /api/v1/trends/*      Daily grand-total series
  /api/v1/regions/*     Region drill-down for filter widgets
  /api/v1/forecast      Injected forecast adapter
  /api/v1/clusters      Injected cluster adapter
  /api/v1/quarantine    Region values held out by policy
  /api/v1/runs/*        Persisted run history
  /api/v1/refresh       Reload the dataset and swap the served view

SECURITY NOTE:
  No authentication middleware. The server fronts a read-only analytics
  dashboard on a trusted network.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/sentinel/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/haldar/aadhaar-sentinel/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/overview", h.GetOverview)
		r.Get("/records", h.ListRecords)
		r.Get("/anomalies", h.ListAnomalies)
		r.Get("/trends/daily", h.DailyTrends)

		// Region drill-down for filter widgets
		r.Route("/regions", func(r chi.Router) {
			r.Get("/states", h.ListStates)
			r.Get("/districts", h.ListDistricts)
			r.Get("/pincodes", h.ListPincodes)
		})

		// Injected adapters
		r.Get("/forecast", h.GetForecast)
		r.Get("/clusters", h.GetClusters)

		r.Get("/quarantine", h.GetQuarantine)

		// Run history
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
			r.Delete("/{id}", h.DeleteRun)
		})

		r.Post("/refresh", h.TriggerRefresh)
	})

	return r
}
