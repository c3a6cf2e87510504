package subject

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryKey struct {
	kind Kind
	id   uuid.UUID
}

// InMemoryStore keeps subjects in a map. Used by unit tests and the
// single-process dev setup.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[memoryKey]Subject
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[memoryKey]Subject)}
}

func (s *InMemoryStore) Load(_ context.Context, kind Kind, id uuid.UUID) (Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[memoryKey{kind: kind, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *InMemoryStore) Save(_ context.Context, sub Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[memoryKey{kind: sub.SubjectKind(), id: sub.SubjectID()}] = sub
	return nil
}
