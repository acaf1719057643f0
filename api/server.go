/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the platform frontends

ROUTE GROUPS:
  /api/loyalty/*        Guest-facing loyalty endpoints
  /api/admin/loyalty/*  Admin operations (adjustments, rules, sweeps)

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

	r.Route("/api", func(r chi.Router) {
		// Guest-facing loyalty routes. Literal routes are registered
		// before the {user_id} wildcard so "options" etc. never match
		// as a user ID.
		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/options", h.ListOptions)
			r.Post("/redeem", h.Redeem)
			r.Post("/award", h.Award)
			r.Get("/{user_id}", h.GetSummary)
			r.Get("/{user_id}/transactions", h.GetTransactions)
		})

		// Admin routes
		r.Route("/admin/loyalty", func(r chi.Router) {
			r.Post("/adjustment", h.CreateAdjustment)
			r.Get("/rules", h.ListRules)
			r.Post("/rules", h.SaveRule)
			r.Get("/sweeps", h.ListSweeps)
		})
	})

	return r
}
