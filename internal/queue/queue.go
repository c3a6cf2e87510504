// Package queue distributes pipeline steps as discrete units of work. A
// chain executes strictly sequentially; whether the next task runs is an
// explicit decision made from the previous task's result, never a side
// effect of a particular broker's exception semantics.
package queue

import (
	"context"

	"github.com/google/uuid"

	"loanflow/internal/subject"
)

// TaskDescriptor identifies one step execution. Workers reload the subject
// from storage by (kind, id), so a descriptor crosses process boundaries.
type TaskDescriptor struct {
	SubjectKind   subject.Kind `json:"subject_kind"`
	SubjectID     uuid.UUID    `json:"subject_id"`
	ServiceID     int64        `json:"service_id"`
	PipelineID    int64        `json:"pipeline_id"`
	CorrelationID string       `json:"correlation_id"`
}

// Result tells the chain runtime what to do after a task.
type Result int

const (
	// Continue advances to the next task. Swallowed integration failures
	// continue: one step's failure must not starve the rest of the chain.
	Continue Result = iota

	// Rejected halts the chain; the subject was transitioned to REJECTED by
	// the task itself, exactly once, before the halt.
	Rejected

	// Halted stops the chain without a rejection, e.g. a transport outage.
	// The run stays retryable.
	Halted
)

// Executor runs one task. Implemented by the flow package.
type Executor interface {
	Execute(ctx context.Context, task TaskDescriptor) Result
}

// Chain enqueues an ordered list of tasks for sequential execution.
type Chain interface {
	EnqueueChain(ctx context.Context, tasks []TaskDescriptor) error
}
