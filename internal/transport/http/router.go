package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanflow/internal/platform/middleware"
)

// RouterDeps collects everything the router mounts besides the handler.
type RouterDeps struct {
	Handler    *Handler
	Health     *HealthHandler
	SigningKey string
	Logger     *slog.Logger
}

// NewRouter wires the public API. Operational endpoints stay outside the
// auth boundary; everything under /v1 requires an operator token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", deps.Health.HandleHealthz)
	r.Get("/readyz", deps.Health.HandleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.SigningKey, deps.Logger))

		r.Get("/integrations", deps.Handler.HandleListIntegrations)

		r.Post("/applications", deps.Handler.HandleCreateApplication)
		r.Route("/applications/{id}", func(r chi.Router) {
			r.Get("/", deps.Handler.HandleGetApplication)
			r.Get("/history", deps.Handler.HandleApplicationHistory)
			r.Get("/transitions", deps.Handler.HandleListTransitions)
			r.Get("/next-statuses", deps.Handler.HandleNextStatuses)
			r.Post("/transitions", deps.Handler.HandlePerformTransition)
			r.Post("/pipelines/{pipelineID}/run", deps.Handler.HandleRunPipeline)
			r.Post("/pipelines/{pipelineID}/retry-failed", deps.Handler.HandleRetryFailed)
		})
	})

	return r
}
