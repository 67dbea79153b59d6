/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for browser clients

ROUTE GROUPS:
  /api/users/*     Per-user summaries, records, calculation, input
  /api/holidays    Holiday calendar
  /api/admin/*     Dedup, cache, kill-switch
  /api/health      Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Get("/records", h.GetRecords)
			r.Post("/recalculate", h.Recalculate)
			r.Post("/usage", h.RecordUsage)
			r.Put("/schedule", h.AssignSchedule)
			r.Post("/entries", h.AddEntries)
		})

		r.Put("/holidays", h.ReplaceHolidays)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/dedup", h.Dedup)
			r.Post("/cache/clear", h.ClearCache)
			r.Post("/calculations/disable", h.DisableCalculations)
			r.Post("/calculations/resume", h.ResumeCalculations)
		})

		r.Get("/health", h.Health)
	})

	return r
}
