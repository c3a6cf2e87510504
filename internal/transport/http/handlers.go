// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and translate domain errors; business logic stays out.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"loanflow/internal/history"
	"loanflow/internal/integration"
	"loanflow/internal/lifecycle"
	"loanflow/internal/pipeline"
	"loanflow/internal/pipeline/flow"
	"loanflow/internal/subject"
	"loanflow/pkg/platform/httputil"
	"loanflow/pkg/requestcontext"
)

// PipelineService runs pipelines against a subject.
type PipelineService interface {
	RunPipeline(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error
	RunRetryFailed(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error
}

// LifecycleService performs and introspects status transitions.
type LifecycleService interface {
	Transition(ctx context.Context, app *subject.CreditApplication, to subject.Status, reason string) error
	Available(app *subject.CreditApplication) []subject.Status
}

// Handler wires the public API to the domain services.
type Handler struct {
	subjects    subject.Store
	history     history.Store
	config      pipeline.ConfigStore
	pipelines   PipelineService
	lifecycle   LifecycleService
	transitions lifecycle.TransitionStore
	registry    *integration.Registry
	logger      *slog.Logger
}

// HandlerDeps collects the handler's collaborators.
type HandlerDeps struct {
	Subjects    subject.Store
	History     history.Store
	Config      pipeline.ConfigStore
	Pipelines   PipelineService
	Lifecycle   LifecycleService
	Transitions lifecycle.TransitionStore
	Registry    *integration.Registry
	Logger      *slog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		subjects:    deps.Subjects,
		history:     deps.History,
		config:      deps.Config,
		pipelines:   deps.Pipelines,
		lifecycle:   deps.Lifecycle,
		transitions: deps.Transitions,
		registry:    deps.Registry,
		logger:      deps.Logger,
	}
}

// HandleListIntegrations handles GET /v1/integrations.
func (h *Handler) HandleListIntegrations(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{
		"integrations": h.registry.List(),
	})
}

type createApplicationRequest struct {
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Product    string `json:"product"`
	Amount     int64  `json:"amount"`
	TermMonths int    `json:"term_months"`
}

// HandleCreateApplication handles POST /v1/applications.
func (h *Handler) HandleCreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createApplicationRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.NationalID == "" || req.Product == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request",
			"national_id and product are required")
		return
	}

	app := &subject.CreditApplication{
		ID:         uuid.New(),
		NationalID: req.NationalID,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Product:    req.Product,
		Amount:     req.Amount,
		TermMonths: req.TermMonths,
		Status:     subject.StatusNew,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := h.subjects.Save(ctx, app); err != nil {
		h.logger.ErrorContext(ctx, "application create failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	h.logger.InfoContext(ctx, "application created",
		"request_id", requestcontext.RequestID(ctx),
		"application", app.ID,
		"product", app.Product,
	)
	httputil.WriteJSON(w, http.StatusCreated, applicationResponse(app))
}

// HandleGetApplication handles GET /v1/applications/{id}.
func (h *Handler) HandleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse(app))
}

// HandleApplicationHistory handles GET /v1/applications/{id}/history.
func (h *Handler) HandleApplicationHistory(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	records, err := h.history.ListBySubject(r.Context(), app.SubjectKind(), app.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history lookup failed",
			"application", app.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"service_id": rec.ServiceID,
			"status":     rec.Status,
			"runtime_ms": rec.Runtime.Milliseconds(),
			"created_at": rec.CreatedAt.Format(time.RFC3339),
			"request_id": rec.RequestID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
}

// HandleListTransitions handles GET /v1/applications/{id}/transitions.
func (h *Handler) HandleListTransitions(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	trail, err := h.transitions.ListTransitions(r.Context(), app.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "transition trail lookup failed",
			"application", app.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	out := make([]map[string]any, 0, len(trail))
	for _, t := range trail {
		out = append(out, map[string]any{
			"from":       t.From,
			"to":         t.To,
			"reason":     t.Reason,
			"actor":      t.Actor,
			"created_at": t.CreatedAt.Format(time.RFC3339),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transitions": out})
}

// HandleNextStatuses handles GET /v1/applications/{id}/next-statuses.
func (h *Handler) HandleNextStatuses(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	next := h.lifecycle.Available(app)
	if next == nil {
		next = []subject.Status{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": app.Status,
		"next":   next,
	})
}

type transitionRequest struct {
	To     subject.Status `json:"to"`
	Reason string         `json:"reason"`
}

// HandlePerformTransition handles POST /v1/applications/{id}/transitions.
func (h *Handler) HandlePerformTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[transitionRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.To == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "target status is required")
		return
	}

	if err := h.lifecycle.Transition(ctx, app, req.To, req.Reason); err != nil {
		h.writeTransitionError(ctx, w, app, req.To, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse(app))
}

func (h *Handler) writeTransitionError(ctx context.Context, w http.ResponseWriter, app *subject.CreditApplication, to subject.Status, err error) {
	var invalid *lifecycle.InvalidTransitionError
	if errors.As(err, &invalid) {
		httputil.WriteError(w, http.StatusConflict, "invalid_transition", invalid.Error())
		return
	}
	var denied *lifecycle.PermissionError
	if errors.As(err, &denied) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden", denied.Error())
		return
	}
	h.logger.ErrorContext(ctx, "transition failed",
		"request_id", requestcontext.RequestID(ctx),
		"application", app.ID,
		"to", to,
		"error", err,
	)
	httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
}

// HandleRunPipeline handles POST /v1/applications/{id}/pipelines/{pipelineID}/run.
func (h *Handler) HandleRunPipeline(w http.ResponseWriter, r *http.Request) {
	h.runPipeline(w, r, h.pipelines.RunPipeline)
}

// HandleRetryFailed handles POST /v1/applications/{id}/pipelines/{pipelineID}/retry-failed.
func (h *Handler) HandleRetryFailed(w http.ResponseWriter, r *http.Request) {
	h.runPipeline(w, r, h.pipelines.RunRetryFailed)
}

func (h *Handler) runPipeline(w http.ResponseWriter, r *http.Request, run func(context.Context, pipeline.Pipeline, subject.Subject) error) {
	ctx := r.Context()
	app, ok := h.loadApplication(w, r)
	if !ok {
		return
	}
	pipelineID, ok := parseID(w, chi.URLParam(r, "pipelineID"))
	if !ok {
		return
	}
	p, err := h.config.GetPipeline(ctx, pipelineID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "pipeline not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if !p.Active {
		httputil.WriteError(w, http.StatusConflict, "pipeline_inactive", "pipeline is disabled")
		return
	}

	start := time.Now()
	err = run(ctx, *p, app)
	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "pipeline run finished",
			"request_id", requestcontext.RequestID(ctx),
			"application", app.ID,
			"pipeline", p.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"result":      "completed",
			"application": applicationResponse(app),
		})
	case errors.Is(err, flow.ErrRunInProgress):
		httputil.WriteError(w, http.StatusConflict, "run_in_progress",
			"another run for this subject is active")
	case integration.IsTransport(err):
		httputil.WriteError(w, http.StatusBadGateway, "upstream_unavailable",
			"an external service is unreachable; retry later")
	default:
		if reject, ok := integration.AsReject(err); ok {
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"result":      "rejected",
				"reason":      reject.Reason,
				"application": applicationResponse(app),
			})
			return
		}
		h.logger.ErrorContext(ctx, "pipeline run failed",
			"request_id", requestcontext.RequestID(ctx),
			"application", app.ID,
			"pipeline", p.Name,
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func (h *Handler) loadApplication(w http.ResponseWriter, r *http.Request) (*subject.CreditApplication, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "malformed application id")
		return nil, false
	}
	sub, err := h.subjects.Load(r.Context(), subject.KindApplication, id)
	if err != nil {
		if errors.Is(err, subject.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "application not found")
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "application load failed", "id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return nil, false
	}
	app, ok := sub.(*subject.CreditApplication)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "application not found")
		return nil, false
	}
	return app, true
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "malformed pipeline id")
		return 0, false
	}
	return id, true
}

func applicationResponse(app *subject.CreditApplication) map[string]any {
	return map[string]any{
		"id":            app.ID,
		"national_id":   app.NationalID,
		"full_name":     app.FullName,
		"product":       app.Product,
		"amount":        app.Amount,
		"term_months":   app.TermMonths,
		"status":        app.Status,
		"status_reason": app.StatusReason,
		"reject_reason": app.RejectReason,
		"score":         app.Score,
		"extra":         app.Extra,
	}
}
