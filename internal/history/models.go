// Package history is the append-only audit log of integration invocations.
// Every non-skipped run writes exactly one record; the same records serve as
// the read path for cached results and for retry scoping.
package history

import (
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
)

// Status is the terminal outcome of one integration invocation.
type Status string

const (
	// StatusSucceeded means the remote call completed and business data was
	// extracted.
	StatusSucceeded Status = "SUCCEEDED"

	// StatusCached means a prior successful result inside the cache window
	// was reused; no remote call was made.
	StatusCached Status = "CACHED"

	// StatusFailed means the remote system responded with an application
	// error or an unexpected failure occurred; the pipeline continued.
	StatusFailed Status = "FAILED"

	// StatusUnavailable means the remote system could not be reached; the
	// surrounding synchronous run halted.
	StatusUnavailable Status = "UNAVAILABLE"
)

// Settled reports whether this status counts as a usable result for retry
// scoping.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusCached
}

// Record captures one integration invocation. Append-only; never updated in
// place.
type Record struct {
	ID          int64
	SubjectKind subject.Kind
	SubjectID   uuid.UUID
	ServiceID   int64
	PipelineID  *int64

	// ReferenceID is the external lookup key (e.g. a national ID) used for
	// cache correlation across subjects sharing the same person.
	ReferenceID string

	Status    Status
	Payload   map[string]any
	Runtime   time.Duration
	CreatedAt time.Time
	RequestID string
}
