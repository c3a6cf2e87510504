// Package pipeline holds the operator-authored configuration binding external
// service configs into ordered pipelines, and the triggers that launch a
// pipeline when an application enters a status. Configuration is created and
// edited out-of-band and read-only at run time.
package pipeline

import (
	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// Pipeline is an ordered, named collection of steps.
type Pipeline struct {
	ID     int64
	Name   string
	Active bool

	// Background pipelines run as distributed task chains; the rest execute
	// on the calling goroutine.
	Background bool
}

// Step binds one service config into a pipeline. (PipelineID, Priority) is
// unique; steps execute in ascending priority.
type Step struct {
	ID         int64
	PipelineID int64
	ServiceID  int64
	Priority   int
	Active     bool

	// HaltOnError controls whether a rejection raised by this step is
	// re-raised to the pipeline's caller after the subject is rejected.
	HaltOnError bool
}

// Binding is a step resolved together with its service config, ready to run.
type Binding struct {
	Step   Step
	Config integration.Config
}

// StatusTrigger launches a pipeline when an application enters a status.
// (Status, Priority) is unique; multiple triggers for one status fire in
// priority order.
type StatusTrigger struct {
	ID         int64
	Product    string
	Status     subject.Status
	Priority   int
	PipelineID int64
	Active     bool
}
