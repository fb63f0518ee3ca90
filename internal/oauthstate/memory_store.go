package oauthstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryStoreSize caps pending logins held in process.
const memoryStoreSize = 10000

// MemoryStore is the in-process fallback used when Redis is unavailable.
// It only works when a single instance serves both the redirect and the
// callback.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Login]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, Login](memoryStoreSize, nil, TTL)}
}

func (m *MemoryStore) Save(_ context.Context, state string, l Login) error {
	if state == "" || l.Verifier == "" {
		return fmt.Errorf("oauthstate: missing state or verifier")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache.Contains(state) {
		return fmt.Errorf("oauthstate: state already in use")
	}
	m.cache.Add(state, l)
	return nil
}

func (m *MemoryStore) Consume(_ context.Context, state string) (*Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.cache.Get(state)
	if !ok {
		return nil, ErrStateNotFound
	}
	m.cache.Remove(state)
	return &l, nil
}
