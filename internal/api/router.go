package api

import (
	"encoding/json"
	"net/http"

	"github.com/ngx-sales/decision-engine/internal/api/handlers"
	"github.com/ngx-sales/decision-engine/internal/api/middleware"
	"github.com/ngx-sales/decision-engine/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth.APIKeys).Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Prediction models
		r.Route("/predict", func(r chi.Router) {
			r.Post("/objection", h.PredictObjection)
			r.Post("/needs", h.PredictNeeds)
			r.Post("/conversion", h.PredictConversion)
		})

		// Decision engine
		r.Route("/decision", func(r chi.Router) {
			r.Post("/optimize", h.Optimize)
			r.Post("/adapt", h.Adapt)
			r.Post("/prioritize", h.Prioritize)
			r.Post("/evaluate-path", h.EvaluatePath)
		})

		// Recorded outcomes
		r.Post("/outcomes", h.RecordOutcome)

		// Model registry
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Route("/{modelName}", func(r chi.Router) {
				r.Get("/", h.GetModel)
				r.Put("/", h.UpdateModel)
			})
		})

		// Training lifecycle
		r.Route("/training", func(r chi.Router) {
			r.Get("/", h.ListTrainings)
			r.Post("/schedule", h.ScheduleTraining)
			r.Post("/auto-schedule", h.AutoScheduleTraining)
			r.Get("/should-retrain/{modelName}", h.ShouldRetrain)
			r.Route("/{trainingId}", func(r chi.Router) {
				r.Get("/", h.GetTraining)
				r.Post("/cancel", h.CancelTraining)
			})
		})

		// Analytics
		r.Get("/analytics", h.Analytics)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "decision-engine",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
		})
	}
}
