package checkpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/firmlens/orchestrator/internal/state"
)

// MemoryStore is an in-process store for tests and local development.
// Snapshots are stored as serialized copies so callers cannot alias the
// stored state.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	leases map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string][]byte),
		leases: make(map[string]chan struct{}),
	}
}

func (m *MemoryStore) Load(ctx context.Context, threadID string) (*state.ConversationState, error) {
	m.mu.Lock()
	raw, ok := m.data[threadID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st state.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) Save(ctx context.Context, threadID string, st *state.ConversationState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[threadID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Acquire(ctx context.Context, threadID string) (func(), error) {
	for {
		m.mu.Lock()
		ch, held := m.leases[threadID]
		if !held {
			done := make(chan struct{})
			m.leases[threadID] = done
			m.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.leases, threadID)
					m.mu.Unlock()
					close(done)
				})
			}, nil
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
			// Lease released; retry.
		}
	}
}
