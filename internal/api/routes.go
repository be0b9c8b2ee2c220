package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes. Webhook intake sits outside /api/v1:
// providers sign their own requests, so it carries no operator auth.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*.prospectly.io", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	// Provider webhook intake.
	r.Post("/webhooks", h.HandleWebhook)
	r.Post("/webhooks/{provider}", h.HandleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/", h.ListEnrollments)
			r.Post("/", h.CreateEnrollment)
			r.Get("/{id}", h.GetEnrollment)
			r.Get("/{id}/events", h.ListEnrollmentEvents)
			r.Post("/{id}/correlation", h.StoreCorrelation)
			r.Post("/{id}/pause", h.PauseEnrollment)
			r.Post("/{id}/resume", h.ResumeEnrollment)
			r.Post("/{id}/complete", h.CompleteEnrollment)
			r.Post("/{id}/advance", h.AdvanceEnrollment)
		})

		r.Get("/campaign-instances/{id}/enrollments", h.ListCampaignEnrollments)

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", h.ListDeadLetters)
			r.Post("/{id}/replay", h.ReplayDeadLetter)
			r.Delete("/resolved", h.PurgeDeadLetters)
		})
	})

	return r
}
