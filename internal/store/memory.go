package store

import (
	"context"
	"sync"

	"github.com/ppiankov/sanctum/internal/model"
)

// MemoryStore keeps records in a mutex-guarded map. Default backend and
// the one the tests use; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.SplitRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.SplitRecord)}
}

func (m *MemoryStore) Get(_ context.Context, originRef string) (*model.SplitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[originRef]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &record, nil
}

func (m *MemoryStore) Put(_ context.Context, record *model.SplitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.OriginRef] = *record
	return nil
}

func (m *MemoryStore) ListIncomplete(_ context.Context) ([]*model.SplitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SplitRecord
	for _, record := range m.records {
		if record.Completed() {
			continue
		}
		copied := record
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ SplitStore = (*MemoryStore)(nil)
