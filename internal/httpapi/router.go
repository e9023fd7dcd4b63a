package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lens_gateway/internal/middleware"
)

// NewRouter creates the HTTP router for the gateway
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(deps.Metrics))
	r.Use(middleware.Recover)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/ready", deps.handleReady)
	r.Handle("/metrics", deps.Metrics.HTTPHandler())

	r.Route("/api/v1/llm", func(r chi.Router) {
		r.Post("/execute", deps.handleExecute)
		r.Post("/evaluate", deps.handleEvaluate)
		r.Get("/evaluate", deps.handleEvaluateCatalog)
		r.Post("/test-connection", deps.handleTestConnection)
		r.Get("/providers/{providerId}/spend", deps.handleSpend)
	})

	return r
}
