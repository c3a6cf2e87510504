package pipeline

import (
	"context"
	"errors"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// ErrNotFound is returned when a configuration row does not exist.
var ErrNotFound = errors.New("pipeline configuration not found")

// ConfigStore reads operator-authored configuration. Run-time code only ever
// reads; writes happen through the out-of-scope admin surface.
type ConfigStore interface {
	// GetPipeline loads one pipeline by ID.
	GetPipeline(ctx context.Context, id int64) (*Pipeline, error)

	// ActiveBindings returns the pipeline's active steps joined with their
	// active service configs, ordered by ascending priority.
	ActiveBindings(ctx context.Context, pipelineID int64) ([]Binding, error)

	// GetServiceConfig loads one service config by ID.
	GetServiceConfig(ctx context.Context, serviceID int64) (*integration.Config, error)

	// TriggersFor returns the active triggers for (product, status), ordered
	// by ascending priority.
	TriggersFor(ctx context.Context, product string, status subject.Status) ([]StatusTrigger, error)
}
