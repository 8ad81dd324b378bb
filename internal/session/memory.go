package session

import (
	"context"
	"sync"
)

// MemoryStore is a simple in-memory session store for tests and local runs.
// It ignores TTLs; expiry is a Redis concern.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]State{}}
}

func (r *MemoryStore) Get(ctx context.Context, id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryStore) Put(ctx context.Context, id string, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = s
	return nil
}

func (r *MemoryStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}
