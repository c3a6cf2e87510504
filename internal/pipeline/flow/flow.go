// Package flow executes a pipeline's steps against one subject, in one of
// three modes: synchronous on the calling goroutine, background as a
// distributed task chain, or retry-failed-only. It owns the decision of what
// a step's failure means for the rest of the run.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/history"
	"loanflow/internal/integration"
	"loanflow/internal/pipeline"
	"loanflow/internal/pipeline/flow/metrics"
	"loanflow/internal/queue"
	"loanflow/internal/subject"
	"loanflow/pkg/requestcontext"
)

// Rejector transitions a subject to its rejected state. Implemented by the
// lifecycle machine.
type Rejector interface {
	Reject(ctx context.Context, sub subject.Subject, reason string) error
}

// Service orchestrates pipeline runs.
type Service struct {
	config   pipeline.ConfigStore
	subjects subject.Store
	registry *integration.Registry
	runner   *integration.Runner
	history  history.Store
	rejector Rejector
	chain    queue.Chain
	lock     RunLock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Deps collects the collaborators a Service needs.
type Deps struct {
	Config   pipeline.ConfigStore
	Subjects subject.Store
	Registry *integration.Registry
	Runner   *integration.Runner
	History  history.Store
	Rejector Rejector
	Chain    queue.Chain
	Lock     RunLock
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func New(deps Deps) *Service {
	lock := deps.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	return &Service{
		config:   deps.Config,
		subjects: deps.Subjects,
		registry: deps.Registry,
		runner:   deps.Runner,
		history:  deps.History,
		rejector: deps.Rejector,
		chain:    deps.Chain,
		lock:     lock,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// SetRejector attaches the lifecycle collaborator. Separated from
// construction because the machine's trigger firer needs this service first.
func (s *Service) SetRejector(r Rejector) {
	s.rejector = r
}

// SetChain attaches the task chain. Separated from construction when the
// chain's executor is this service itself.
func (s *Service) SetChain(c queue.Chain) {
	s.chain = c
}

// RunPipeline dispatches on the pipeline's configured mode. This is the
// entry point status triggers use.
func (s *Service) RunPipeline(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error {
	if p.Background {
		return s.RunBackground(ctx, p, sub)
	}
	return s.RunSynchronous(ctx, p, sub)
}

// RunSynchronous iterates the pipeline's active steps in priority order on
// the calling goroutine.
//
// A rejection transitions the subject and stops the run; it is re-returned
// to the caller only when the rejecting step is marked HaltOnError. A
// transport outage stops the run without touching the subject and surfaces
// to the caller, leaving the run retryable. Swallowed step failures do not
// stop the run.
func (s *Service) RunSynchronous(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error {
	release, err := s.lock.Acquire(ctx, sub.SubjectKind(), sub.SubjectID(), p.ID)
	if err != nil {
		return err
	}
	defer release()

	ctx = s.withCorrelation(ctx)
	bindings, err := s.config.ActiveBindings(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load pipeline %s steps: %w", p.Name, err)
	}

	for _, binding := range bindings {
		result, err := s.runStep(ctx, sub, binding, integration.RunOptions{
			UseCache:   true,
			PipelineID: &p.ID,
		})
		switch result {
		case stepContinue:
			continue
		case stepRejected:
			s.metrics.IncrementRun("sync", "rejected")
			if binding.Step.HaltOnError {
				return err
			}
			return nil
		case stepHalted:
			s.metrics.IncrementRun("sync", "halted")
			return err
		}
	}
	s.metrics.IncrementRun("sync", "completed")
	return nil
}

// RunBackground compiles the pipeline into an ordered task chain and
// enqueues it. Execution happens on workers; each task reloads the subject
// by id.
func (s *Service) RunBackground(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error {
	ctx = s.withCorrelation(ctx)
	bindings, err := s.config.ActiveBindings(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load pipeline %s steps: %w", p.Name, err)
	}
	if len(bindings) == 0 {
		return nil
	}

	correlationID := requestcontext.RequestID(ctx)
	tasks := make([]queue.TaskDescriptor, 0, len(bindings))
	for _, binding := range bindings {
		tasks = append(tasks, queue.TaskDescriptor{
			SubjectKind:   sub.SubjectKind(),
			SubjectID:     sub.SubjectID(),
			ServiceID:     binding.Config.ID,
			PipelineID:    p.ID,
			CorrelationID: correlationID,
		})
	}

	if err := s.chain.EnqueueChain(ctx, tasks); err != nil {
		s.metrics.IncrementRun("background", "enqueue_failed")
		return fmt.Errorf("enqueue pipeline %s: %w", p.Name, err)
	}
	s.metrics.IncrementRun("background", "enqueued")
	return nil
}

// RunRetryFailed recomputes, from history, the services that have not yet
// settled for this subject and pipeline, and runs only those with cache
// lookup forced on. Operator-triggered best-effort catch-up: an individual
// step's error is logged and the remaining retries continue; only a
// rejection stops the run.
func (s *Service) RunRetryFailed(ctx context.Context, p pipeline.Pipeline, sub subject.Subject) error {
	release, err := s.lock.Acquire(ctx, sub.SubjectKind(), sub.SubjectID(), p.ID)
	if err != nil {
		return err
	}
	defer release()

	ctx = s.withCorrelation(ctx)
	bindings, err := s.config.ActiveBindings(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load pipeline %s steps: %w", p.Name, err)
	}
	latest, err := s.history.LatestStatuses(ctx, sub.SubjectKind(), sub.SubjectID(), p.ID)
	if err != nil {
		return fmt.Errorf("load run history for pipeline %s: %w", p.Name, err)
	}

	for _, binding := range bindings {
		if status, ok := latest[binding.Config.ID]; ok && status.Settled() {
			continue
		}
		result, err := s.runStep(ctx, sub, binding, integration.RunOptions{
			UseCache:   true,
			PipelineID: &p.ID,
		})
		if result == stepRejected {
			s.metrics.IncrementRun("retry", "rejected")
			if binding.Step.HaltOnError {
				return err
			}
			return nil
		}
		if err != nil {
			s.logger.Warn("retried step failed",
				"pipeline", p.Name,
				"service", binding.Config.Name,
				"subject", sub.SubjectID(),
				"error", err,
			)
		}
	}
	s.metrics.IncrementRun("retry", "completed")
	return nil
}

type stepResult int

const (
	stepContinue stepResult = iota
	stepRejected
	stepHalted
)

// runStep executes one binding and classifies the outcome for the
// surrounding loop. A rejection is applied to the subject here, so every
// mode shares the transition-exactly-once behavior.
func (s *Service) runStep(ctx context.Context, sub subject.Subject, binding pipeline.Binding, opts integration.RunOptions) (stepResult, error) {
	svc, err := s.registry.Resolve(binding.Config)
	if err != nil {
		// A configuration error is not a remote fault: log it and let the
		// rest of the pipeline proceed.
		s.logger.Error("integration resolution failed",
			"service", binding.Config.Name, "error", err)
		return stepContinue, nil
	}

	start := time.Now()
	record, err := s.runner.RunService(ctx, sub, svc, binding.Config, opts)
	if record != nil {
		s.metrics.ObserveStep(binding.Config.Name, string(record.Status), time.Since(start))
		// Save() mutated the subject on these outcomes; persist before the
		// next step reads it.
		if record.Status == history.StatusSucceeded || record.Status == history.StatusCached {
			if saveErr := s.subjects.Save(ctx, sub); saveErr != nil {
				s.logger.Error("subject save failed",
					"service", binding.Config.Name, "subject", sub.SubjectID(), "error", saveErr)
			}
		}
	}
	if err == nil {
		return stepContinue, nil
	}

	if reject, ok := integration.AsReject(err); ok {
		if rejErr := s.rejector.Reject(ctx, sub, reject.Reason); rejErr != nil {
			s.logger.Error("subject rejection failed",
				"subject", sub.SubjectID(), "reason", reject.Reason, "error", rejErr)
		}
		return stepRejected, err
	}

	// Transport outage or a rule-check fault: remaining steps cannot make
	// progress on this subject right now.
	s.logger.Error("pipeline halted by step failure",
		"service", binding.Config.Name, "subject", sub.SubjectID(), "error", err)
	return stepHalted, err
}

func (s *Service) withCorrelation(ctx context.Context) context.Context {
	if requestcontext.RequestID(ctx) == "" {
		ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
	}
	return ctx
}
