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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/groups/*     Group lifecycle, schedules, payments
  /api/me/*         The caller's own groups, ledger, requests
  /api/requests/*   Request submission and admin resolution

SECURITY NOTE:
  No authentication middleware. Identity comes from X-User-ID / X-Admin-ID
  headers, expected to be set by a trusted gateway.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Admin-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Get("/{id}/months", h.ListGroupMonths)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/leave", h.LeaveGroup)
		})

		// Caller's own view
		r.Route("/me", func(r chi.Router) {
			r.Get("/groups", h.MyGroups)
			r.Get("/ledger", h.MyLedger)
			r.Get("/requests", h.MyRequests)
		})

		// Request submission and resolution
		r.Route("/requests", func(r chi.Router) {
			r.Post("/join", h.SubmitJoin)
			r.Post("/leave", h.SubmitLeave)
			r.Post("/prebook", h.SubmitPrebook)
			r.Post("/cash-payment", h.SubmitCashPayment)
			r.Delete("/", h.WithdrawRequest)
			r.Get("/pending", h.ListPendingRequests)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
		})
	})

	return r
}
