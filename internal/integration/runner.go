package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loanflow/internal/history"
	"loanflow/internal/subject"
	"loanflow/pkg/requestcontext"
)

var tracer = otel.Tracer("loanflow/integration")

// RunOptions tune a single invocation.
type RunOptions struct {
	// UseCache enables reuse of a prior successful result within the
	// service's cache window. Retry runs force it on so a success elsewhere
	// is respected.
	UseCache bool

	// PipelineID ties the history record to the pipeline run, when the
	// invocation happens inside one.
	PipelineID *int64
}

// Runner executes one integration invocation end to end: gate, cache lookup,
// remote call, persistence, side effects, audit record, rule check. It owns
// the failure classification the surrounding pipeline depends on.
type Runner struct {
	store  history.Store
	logger *slog.Logger
}

// NewRunner creates a runner writing audit records to store.
func NewRunner(store history.Store, logger *slog.Logger) *Runner {
	return &Runner{store: store, logger: logger}
}

// RunService performs one invocation of svc (configured by cfg) against sub.
//
// The returned record is nil when the step was skipped by Conditions. The
// returned error is non-nil in exactly two cases: a *TransportError from the
// remote call, and any error from CheckRule (a *RejectError in particular).
// Everything else is recorded on the history record and swallowed so one
// integration's failure cannot abort the surrounding pipeline.
func (r *Runner) RunService(ctx context.Context, sub subject.Subject, svc Integration, cfg Config, opts RunOptions) (*history.Record, error) {
	if !svc.Conditions(ctx, sub) {
		r.logger.Debug("integration skipped by conditions",
			"service", cfg.Name,
			"subject", sub.SubjectID(),
		)
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "integration.run",
		trace.WithAttributes(
			attribute.String("service", cfg.Name),
			attribute.String("subject_kind", string(sub.SubjectKind())),
		),
	)
	defer span.End()

	start := time.Now()
	record := &history.Record{
		SubjectKind: sub.SubjectKind(),
		SubjectID:   sub.SubjectID(),
		ServiceID:   cfg.ID,
		PipelineID:  opts.PipelineID,
		ReferenceID: sub.Reference(),
		RequestID:   requestcontext.RequestID(ctx),
	}

	var (
		payload Payload
		runErr  error
	)

	if err := svc.Prepare(ctx, sub); err != nil {
		record.Status = history.StatusFailed
		r.logger.Error("integration prepare failed",
			"service", cfg.Name, "subject", sub.SubjectID(), "error", err)
		r.finishRecord(ctx, record, nil, start)
		return record, nil
	}

	if cached := r.findCachedData(ctx, sub, cfg, opts); cached != nil {
		record.Status = history.StatusCached
		payload = cached
	} else {
		payload, runErr = r.runRemote(ctx, sub, svc)
		switch {
		case runErr == nil:
			record.Status = history.StatusSucceeded
		case IsTransport(runErr):
			record.Status = history.StatusUnavailable
			r.logger.Error("integration transport failure",
				"service", cfg.Name, "subject", sub.SubjectID(), "error", runErr)
			r.finishRecord(ctx, record, nil, start)
			// The one failure class that always reaches the caller.
			return record, runErr
		default:
			record.Status = history.StatusFailed
			r.logger.Error("integration failed",
				"service", cfg.Name, "subject", sub.SubjectID(), "error", runErr)
			r.finishRecord(ctx, record, nil, start)
			return record, nil
		}
	}

	if err := svc.Save(ctx, sub, payload); err != nil {
		record.Status = history.StatusFailed
		r.logger.Error("integration save failed",
			"service", cfg.Name, "subject", sub.SubjectID(), "error", err)
		r.finishRecord(ctx, record, payload, start)
		return record, nil
	}

	r.postRun(ctx, sub, svc, cfg, payload)

	r.finishRecord(ctx, record, payload, start)

	// Rule violations are never swallowed, regardless of where the payload
	// came from.
	if err := svc.CheckRule(ctx, sub, payload); err != nil {
		if reject, ok := AsReject(err); ok {
			r.logger.Info("integration rejected subject",
				"service", cfg.Name, "subject", sub.SubjectID(), "reason", reject.Reason)
		}
		return record, err
	}
	return record, nil
}

// findCachedData returns the payload of the most recent successful record for
// (service, reference) inside the cache window, or nil. Skipped entirely when
// the service has no cache lifetime configured or the invocation disabled
// cache use.
func (r *Runner) findCachedData(ctx context.Context, sub subject.Subject, cfg Config, opts RunOptions) Payload {
	if cfg.CacheLifetime == nil || !opts.UseCache {
		return nil
	}
	since := requestcontext.Now(ctx).Add(-*cfg.CacheLifetime)
	cached, err := r.store.FindCached(ctx, cfg.ID, sub.Reference(), since)
	if err != nil {
		return nil
	}
	return cached.Payload
}

// runRemote isolates panics from integration code so they surface as plain
// failures instead of taking the worker down.
func (r *Runner) runRemote(ctx context.Context, sub subject.Subject, svc Integration) (payload Payload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("integration panicked: %v", rec)
		}
	}()
	return svc.Run(ctx, sub)
}

// postRun fires side effects, independently catching anything they raise.
func (r *Runner) postRun(ctx context.Context, sub subject.Subject, svc Integration, cfg Config, payload Payload) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("integration postrun panicked",
				"service", cfg.Name, "subject", sub.SubjectID(), "panic", rec)
		}
	}()
	if err := svc.PostRun(ctx, sub, payload); err != nil {
		r.logger.Error("integration postrun failed",
			"service", cfg.Name, "subject", sub.SubjectID(), "error", err)
	}
}

// finishRecord stamps timing and writes the audit record. A failed write is
// logged loudly but does not alter the invocation outcome: the audit trail
// must not convert a business result into a pipeline abort.
func (r *Runner) finishRecord(ctx context.Context, record *history.Record, payload Payload, start time.Time) {
	record.Payload = payload
	record.CreatedAt = requestcontext.Now(ctx)
	record.Runtime = time.Since(start)
	if err := r.store.Append(ctx, record); err != nil {
		r.logger.Error("history append failed",
			"service_id", record.ServiceID,
			"subject", record.SubjectID,
			"status", record.Status,
			"error", err,
		)
	}
}
