package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
)

// ErrNotFound is returned when no record matches a cache lookup.
var ErrNotFound = errors.New("history record not found")

// Store persists invocation records. Implementations must keep Append
// append-only; concurrent writers for different subjects never conflict.
type Store interface {
	// Append writes one record and fills in its assigned ID.
	Append(ctx context.Context, record *Record) error

	// FindCached returns the most recent SUCCEEDED record for (serviceID,
	// referenceID) created at or after since. Returns ErrNotFound on a miss.
	FindCached(ctx context.Context, serviceID int64, referenceID string, since time.Time) (*Record, error)

	// LatestStatuses returns, per service, the status of the most recent
	// record for the subject within the given pipeline.
	LatestStatuses(ctx context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (map[int64]Status, error)

	// ListBySubject returns all records for a subject, newest first.
	ListBySubject(ctx context.Context, kind subject.Kind, subjectID uuid.UUID) ([]Record, error)
}
