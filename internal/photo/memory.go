package photo

import (
	"context"
	"sync"
)

// MemoryStore keeps uploads in process memory. It backs local runs
// without an object store and the handler tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Upload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Upload)}
}

func (m *MemoryStore) Put(_ context.Context, u Upload) (string, error) {
	name := ObjectName(u.PlayerID, u.LocationID, u.ContentType)
	m.mu.Lock()
	m.objects[name] = u
	m.mu.Unlock()
	return "memory://" + name, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
