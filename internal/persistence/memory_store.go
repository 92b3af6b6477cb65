package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/rewind/pkg/api"
)

// InMemoryStore is the reference HistoryStore implementation, backed by
// maps. It is goroutine-safe; Load returns a snapshot copy so concurrent
// status queries never observe a partially appended history.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*memoryInstance
}

type memoryInstance struct {
	rec    InstanceRecord
	events []api.HistoryEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*memoryInstance),
	}
}

var _ HistoryStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateInstance(ctx context.Context, rec InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[rec.ID]; ok {
		return ErrInstanceExists
	}
	if rec.Status == "" {
		rec.Status = api.StatusRunning
	}
	s.instances[rec.ID] = &memoryInstance{rec: rec}
	return nil
}

func (s *InMemoryStore) Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if len(inst.events) != expectedVersion {
		return ErrHistoryConflict
	}
	inst.events = append(inst.events, events...)
	applyDerived(&inst.rec, events)
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	out := make([]api.HistoryEvent, len(inst.events))
	copy(out, inst.events)
	return out, nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, instanceID string) (InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return InstanceRecord{}, ErrInstanceNotFound
	}
	return inst.rec, nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []InstanceRecord
	for _, inst := range s.instances {
		if filter.Workflow != "" && inst.rec.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && inst.rec.Status != filter.Status {
			continue
		}
		result = append(result, inst.rec)
	}
	return result, nil
}
