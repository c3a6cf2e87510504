package lifecycle

import (
	"context"
	"log/slog"

	"loanflow/internal/pipeline"
	"loanflow/internal/subject"
)

// PipelineRunner launches one configured pipeline against a subject. The
// flow package implements it; the indirection keeps this package free of
// orchestration details.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error
}

// Triggers fires the pipelines bound to a newly entered status: matching
// active triggers, filtered by product, in priority order. A failing
// triggered pipeline is logged and never rolls back the committed
// transition.
type Triggers struct {
	config pipeline.ConfigStore
	runner PipelineRunner
	logger *slog.Logger
}

func NewTriggers(config pipeline.ConfigStore, runner PipelineRunner, logger *slog.Logger) *Triggers {
	return &Triggers{config: config, runner: runner, logger: logger}
}

func (t *Triggers) Fire(ctx context.Context, app *subject.CreditApplication) {
	triggers, err := t.config.TriggersFor(ctx, app.Product, app.Status)
	if err != nil {
		t.logger.Error("status trigger lookup failed",
			"application", app.ID, "status", app.Status, "error", err)
		return
	}

	for _, trigger := range triggers {
		p, err := t.config.GetPipeline(ctx, trigger.PipelineID)
		if err != nil {
			t.logger.Error("triggered pipeline missing",
				"trigger", trigger.ID, "pipeline", trigger.PipelineID, "error", err)
			continue
		}
		if !p.Active {
			continue
		}
		if err := t.runner.RunPipeline(ctx, *p, app); err != nil {
			t.logger.Error("triggered pipeline failed",
				"application", app.ID,
				"status", app.Status,
				"pipeline", p.Name,
				"error", err,
			)
		}
	}
}
