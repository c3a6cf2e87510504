package flow

import (
	"context"

	"loanflow/internal/integration"
	"loanflow/internal/pipeline"
	"loanflow/internal/queue"
	"loanflow/pkg/requestcontext"
)

// Execute runs one background task. Workers call this with a descriptor from
// the chain; the subject is reloaded so the task sees the state as of its own
// turn, not as of enqueue time.
func (s *Service) Execute(ctx context.Context, task queue.TaskDescriptor) queue.Result {
	if task.CorrelationID != "" {
		ctx = requestcontext.WithRequestID(ctx, task.CorrelationID)
	}

	sub, err := s.subjects.Load(ctx, task.SubjectKind, task.SubjectID)
	if err != nil {
		s.logger.Error("background task cannot load subject",
			"kind", task.SubjectKind, "subject", task.SubjectID, "error", err)
		s.metrics.IncrementRun("background", "halted")
		return queue.Halted
	}

	cfg, err := s.config.GetServiceConfig(ctx, task.ServiceID)
	if err != nil {
		s.logger.Error("background task cannot load service config",
			"service_id", task.ServiceID, "error", err)
		s.metrics.IncrementRun("background", "halted")
		return queue.Halted
	}

	binding := pipeline.Binding{
		Step:   pipeline.Step{ServiceID: cfg.ID, PipelineID: task.PipelineID, HaltOnError: true},
		Config: *cfg,
	}
	result, err := s.runStep(ctx, sub, binding, integration.RunOptions{
		UseCache:   true,
		PipelineID: &task.PipelineID,
	})
	switch result {
	case stepRejected:
		s.metrics.IncrementRun("background", "rejected")
		return queue.Rejected
	case stepHalted:
		s.logger.Error("background task halted chain",
			"service", cfg.Name, "subject", task.SubjectID, "error", err)
		s.metrics.IncrementRun("background", "halted")
		return queue.Halted
	default:
		return queue.Continue
	}
}
