/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/availability/*   Searches and single checks
  /api/reservations/*   Reservation lifecycle
  /api/allocations/*    Allocation lifecycle and pricing
  /api/rooms, /api/resources, /api/catalog
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The caller identity headers must be set by
  a trusted gateway in front of this server.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			"X-User-ID", "X-User-Email", "X-User-Roles", "X-User-Groups",
		},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/availability", func(r chi.Router) {
			r.Post("/search", h.SearchAvailability)
			r.Post("/check", h.CheckAvailability)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Post("/recurring", h.CreateRecurringReservation)
			r.Get("/{id}", h.GetReservation)
			r.Put("/{id}", h.UpdateReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.Post("/cost", h.CalculateCost)
			r.Post("/{id}/cancel", h.CancelAllocation)
			r.Post("/{id}/approve", h.ApproveAllocation)
			r.Post("/{id}/reject", h.RejectAllocation)
		})

		r.Get("/rooms", h.ListRooms)
		r.Get("/resources", h.ListResources)
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", h.GetCatalog)
			r.Post("/", h.UploadCatalog)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/close-elapsed", h.CloseElapsed)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
