package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
)

// InMemoryStore keeps records in a slice. Used by unit tests and the
// single-process dev setup.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) Append(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *record)
	return nil
}

func (s *InMemoryStore) FindCached(_ context.Context, serviceID int64, referenceID string, since time.Time) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.ServiceID != serviceID || r.ReferenceID != referenceID {
			continue
		}
		if r.Status != StatusSucceeded {
			continue
		}
		if r.CreatedAt.Before(since) {
			continue
		}
		found := r
		return &found, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) LatestStatuses(_ context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (map[int64]Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[int64]Status)
	for _, r := range s.records {
		if r.SubjectKind != kind || r.SubjectID != subjectID {
			continue
		}
		if r.PipelineID == nil || *r.PipelineID != pipelineID {
			continue
		}
		// Records are appended in order, so a later entry wins.
		latest[r.ServiceID] = r.Status
	}
	return latest, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, kind subject.Kind, subjectID uuid.UUID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.SubjectKind == kind && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out, nil
}
