package cache

import (
	"context"
	"time"
)

// ResultStore adapts a Manager to capability.ResultCache. A miss is
// reported through the bool, never as an error.
type ResultStore struct {
	manager *Manager
}

// NewResultStore wraps m.
func NewResultStore(m *Manager) *ResultStore {
	return &ResultStore{manager: m}
}

// Lookup returns the cached value for key.
func (s *ResultStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := s.manager.Get(ctx, key)
	if IsCacheMiss(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Store caches value under key for ttl.
func (s *ResultStore) Store(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.manager.Set(ctx, key, value, ttl)
}
