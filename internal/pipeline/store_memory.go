package pipeline

import (
	"context"
	"sort"
	"sync"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// InMemoryStore holds configuration in maps. Used by unit tests and the
// single-process dev setup; the admin surface writes through SQL in
// production.
type InMemoryStore struct {
	mu        sync.RWMutex
	pipelines map[int64]Pipeline
	steps     []Step
	services  map[int64]integration.Config
	triggers  []StatusTrigger
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pipelines: make(map[int64]Pipeline),
		services:  make(map[int64]integration.Config),
	}
}

// PutPipeline registers a pipeline definition.
func (s *InMemoryStore) PutPipeline(p Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[p.ID] = p
}

// PutStep registers a step.
func (s *InMemoryStore) PutStep(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// PutServiceConfig registers a service config.
func (s *InMemoryStore) PutServiceConfig(cfg integration.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[cfg.ID] = cfg
}

// PutTrigger registers a status trigger.
func (s *InMemoryStore) PutTrigger(t StatusTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

func (s *InMemoryStore) GetPipeline(_ context.Context, id int64) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) ActiveBindings(_ context.Context, pipelineID int64) ([]Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bindings []Binding
	for _, step := range s.steps {
		if step.PipelineID != pipelineID || !step.Active {
			continue
		}
		cfg, ok := s.services[step.ServiceID]
		if !ok || !cfg.Active {
			continue
		}
		bindings = append(bindings, Binding{Step: step, Config: cfg})
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Step.Priority < bindings[j].Step.Priority
	})
	return bindings, nil
}

func (s *InMemoryStore) GetServiceConfig(_ context.Context, serviceID int64) (*integration.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.services[serviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *InMemoryStore) TriggersFor(_ context.Context, product string, status subject.Status) ([]StatusTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StatusTrigger
	for _, t := range s.triggers {
		if !t.Active || t.Status != status {
			continue
		}
		if t.Product != "" && t.Product != product {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}
