package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore implements Store with an in-process map.
//
// State dicts round-trip through JSON on both save and load, so callers see
// the same decoded types (float64 numbers, []any slices) a durable store
// would produce.
type MemoryStore struct {
	states map[string]string
	mu     sync.RWMutex

	// SaveCount and LoadCount track operations for assertions in tests.
	SaveCount int
	LoadCount int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{states: make(map[string]string)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCount++
	m.states[sessionID] = string(data)
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) (map[string]any, error) {
	m.mu.Lock()
	m.LoadCount++
	data, exists := m.states[sessionID]
	m.mu.Unlock()

	if !exists {
		return nil, ErrNotFound
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return state, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored checkpoints.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

var _ Store = (*MemoryStore)(nil)
