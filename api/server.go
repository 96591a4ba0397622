/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the POS frontend

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
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Principal"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/registers", func(r chi.Router) {
			r.Get("/", h.ListRegisters)
			r.Post("/", h.CreateRegister)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRegister)
				r.Delete("/", h.DeleteRegister)
				r.Post("/open", h.OpenRegister)
				r.Post("/close", h.CloseRegister)

				r.Post("/transactions", h.PostTransaction)
				r.Get("/transactions", h.GetHistory)
				r.Get("/balance", h.GetBalanceAsOf)
				r.Get("/reconcile", h.Reconcile)
			})
		})
	})

	return r
}
