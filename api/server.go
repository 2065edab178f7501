/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/inventory/*      Pantry items
  /api/mealplan/*       Scheduling, cooking, undo
  /api/allocations      Pending reservations
  /api/leftovers/*      Leftover tracking
  /api/family, /api/shopping/*
  /api/suggestions      Recipe suggestions
  /api/units/convert    Unit conversion
  /api/audit            Audit log
  /api/sweeps           Expiry sweeper
  /api/scenarios/*      Demo scenarios and reset (dev only)
  /api/events           Websocket change feed
  /metrics              Prometheus

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// DefaultOrigins are the dev frontends allowed when none are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Method(http.MethodGet, "/metrics", h.Engine.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		r.Route("/mealplan", func(r chi.Router) {
			r.Get("/", h.GetMealPlan)
			r.Post("/schedule", h.ScheduleRecipe)
			r.Route("/{slot}/meals/{id}", func(r chi.Router) {
				r.Delete("/", h.RemoveMeal)
				r.Post("/reschedule", h.RescheduleMeal)
				r.Post("/cook", h.CookMeal)
				r.Post("/undo", h.UndoCook)
			})
		})

		r.Get("/allocations", h.ListAllocations)

		r.Route("/leftovers", func(r chi.Router) {
			r.Get("/", h.ListLeftovers)
			r.Post("/", h.CreateLeftover)
			r.Post("/{id}/eat", h.EatLeftover)
			r.Delete("/{id}", h.RemoveLeftover)
		})
		r.Get("/history", h.ListHistory)

		r.Get("/family", h.GetFamily)
		r.Put("/family", h.SetFamily)

		r.Route("/shopping", func(r chi.Router) {
			r.Get("/", h.ListShopping)
			r.Post("/", h.AddShoppingItem)
			r.Post("/refresh", h.RefreshShopping)
			r.Put("/{id}", h.CheckShoppingItem)
			r.Delete("/{id}", h.RemoveShoppingItem)
		})

		r.Post("/suggestions", h.Suggest)
		r.Get("/units/convert", h.ConvertUnits)
		r.Get("/audit", h.ListAudit)

		r.Route("/sweeps", func(r chi.Router) {
			r.Get("/", h.ListSweeps)
			r.Post("/", h.RunSweep)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Get("/events", h.Events)
	})

	return r
}
