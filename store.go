package clubauth

import (
	"context"
	"sync"
)

// Storage keys read at cold start to reconstruct the login state.
const (
	StoreKeyAccess  = "access"
	StoreKeyRefresh = "refresh"
	StoreKeyProfile = "profile"
)

// Store is durable key/value storage for the session tokens and an optional
// profile snapshot. Load reports absence through its second return value;
// implementations treat storage errors as "absent" so the client can always
// boot into a logged-out state instead of crashing.
type Store interface {
	Save(ctx context.Context, key, value string) error
	Load(ctx context.Context, key string) (string, bool)
	Remove(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store, used in tests and as a fallback when no
// durable storage is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
