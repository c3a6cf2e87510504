package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
)

// StatusTransition is the audit row appended on every committed transition.
type StatusTransition struct {
	ID            int64
	ApplicationID uuid.UUID
	From          subject.Status
	To            subject.Status
	Reason        string
	Actor         string
	CreatedAt     time.Time
}

// TransitionStore commits a status mutation atomically with its audit row:
// both land or neither does.
type TransitionStore interface {
	Apply(ctx context.Context, app *subject.CreditApplication, prev subject.Status, reason string) error

	// MarkLeadRejected records a pipeline rejection on a lead, which carries
	// no formal status graph.
	MarkLeadRejected(ctx context.Context, lead *subject.Lead, reason string) error

	// ListTransitions returns the audit trail for one application, oldest
	// first.
	ListTransitions(ctx context.Context, applicationID uuid.UUID) ([]StatusTransition, error)
}

// InMemoryTransitionStore backs unit tests and the single-process dev setup.
type InMemoryTransitionStore struct {
	mu          sync.RWMutex
	subjects    subject.Store
	transitions []StatusTransition
	nextID      int64
}

func NewInMemoryTransitionStore(subjects subject.Store) *InMemoryTransitionStore {
	return &InMemoryTransitionStore{subjects: subjects, nextID: 1}
}

func (s *InMemoryTransitionStore) Apply(ctx context.Context, app *subject.CreditApplication, prev subject.Status, reason string) error {
	if err := s.subjects.Save(ctx, app); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, StatusTransition{
		ID:            s.nextID,
		ApplicationID: app.ID,
		From:          prev,
		To:            app.Status,
		Reason:        reason,
		CreatedAt:     time.Now(),
	})
	s.nextID++
	return nil
}

func (s *InMemoryTransitionStore) MarkLeadRejected(ctx context.Context, lead *subject.Lead, reason string) error {
	return s.subjects.Save(ctx, lead)
}

func (s *InMemoryTransitionStore) ListTransitions(_ context.Context, applicationID uuid.UUID) ([]StatusTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StatusTransition
	for _, t := range s.transitions {
		if t.ApplicationID == applicationID {
			out = append(out, t)
		}
	}
	return out, nil
}
