// Package idempotency records which client-generated keys have already been
// applied, so a replayed offline action is recognized instead of re-run.
package idempotency

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

// Store claims keys. Claim returns claimed=false and the recorded resource
// id when the key was seen before. A failed action releases its key so the
// client may retry it.
type Store interface {
	Claim(ctx context.Context, key string) (claimed bool, resourceID string, err error)
	Complete(ctx context.Context, key string, resourceID string) error
	Release(ctx context.Context, key string) error
}

type entry struct {
	resourceID string
	expiresAt  time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (m *MemoryStore) Claim(_ context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false, e.resourceID, nil
	}
	m.entries[key] = entry{expiresAt: now.Add(m.ttl)}
	return true, "", nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{resourceID: resourceID, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
