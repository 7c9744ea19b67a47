package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oddsline/settled/internal/domain"
)

// LockManager is an in-memory mutual exclusion manager. Locks expire after
// their TTL so a crashed holder cannot wedge a key forever.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLockManager creates an empty in-memory lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// Acquire obtains the lock for key, returning an unlock function, or
// ErrLockHeld when another invocation holds it and its TTL has not lapsed.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if expires, ok := m.held[key]; ok && now.Before(expires) {
		return nil, domain.ErrLockHeld
	}

	deadline := now.Add(ttl)
	m.held[key] = deadline

	unlock := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Only release if this acquisition still owns the key.
		if expires, ok := m.held[key]; ok && expires.Equal(deadline) {
			delete(m.held, key)
		}
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
