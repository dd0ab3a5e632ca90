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
  4. CORS:       Cross-origin requests for the app frontend

ROUTE GROUPS:
  /api/users/{id}/*     Progress, transactions, settlement, recovery
  /api/tasks/*          Task completion
  /api/rewards/*        Reward catalog
  /api/redemptions/*    Parent approval flow

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// User routes
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/progress", h.GetProgress)
			r.Get("/progress/watch", h.WatchProgress)
			r.Post("/credit", h.CreditGold)
			r.Post("/debit", h.DebitGold)
			r.Post("/xp", h.AdjustXP)

			r.Get("/transactions", h.GetTransactions)
			r.Get("/transactions/export", h.ExportTransactions)

			r.Route("/settlement", func(r chi.Router) {
				r.Get("/days", h.ListDailyRecords)
				r.Post("/settle", h.SettleDay)
				r.Post("/catch-up", h.CatchUp)
				r.Post("/reprocess", h.Reprocess)
			})

			r.Get("/tasks", h.ListTasks)
			r.Post("/tasks", h.CreateTask)

			r.Get("/redemptions", h.ListRedemptions)
			r.Post("/redemptions", h.RequestRedemption)

			r.Route("/recovery", func(r chi.Router) {
				r.Get("/investigate", h.Investigate)
				r.Get("/health", h.Health)
				r.Post("/restore", h.Restore)
				r.Post("/migrate", h.Migrate)
			})

			r.Route("/punishment", func(r chi.Router) {
				r.Get("/", h.GetPunishment)
				r.Post("/", h.ActivatePunishment)
				r.Post("/task", h.CompletePunishmentTask)
			})
		})

		// Task completion (task ID is globally unique)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/{taskID}/complete", h.CompleteTask)
		})

		// Reward catalog
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Post("/", h.CreateReward)
		})

		// Parent approval routes
		r.Route("/redemptions", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApproveRedemption)
			r.Post("/{id}/reject", h.RejectRedemption)
		})
	})

	return r
}
