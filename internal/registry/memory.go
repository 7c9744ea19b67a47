package registry

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-process KV with the same lease semantics as the Redis
// ledger. It backs the ephemeral development mode and the engine tests.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

// NewMemoryKV creates a MemoryKV whose records expire after ttl unless
// touched. A nil clock defaults to time.Now.
func NewMemoryKV(ttl time.Duration, clock func() time.Time) *MemoryKV {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryKV{
		entries: make(map[string]memEntry),
		ttl:     ttl,
		now:     clock,
	}
}

// Get returns the value for key, or ok=false if absent or expired.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	val := make([]byte, len(e.val))
	copy(val, e.val)
	return val, true, nil
}

// Put stores the value and starts its lease.
func (m *MemoryKV) Put(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(val))
	copy(stored, val)
	m.entries[key] = memEntry{val: stored, expires: m.now().Add(m.ttl)}
	return nil
}

// Touch renews the leases of existing records; absent keys are ignored.
func (m *MemoryKV) Touch(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, key := range keys {
		e, ok := m.entries[key]
		if !ok || now.After(e.expires) {
			continue
		}
		e.expires = now.Add(m.ttl)
		m.entries[key] = e
	}
	return nil
}

// Len reports the number of live records, used by tests to confirm that
// default-valued reads do not materialize records.
func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Compile-time interface check.
var _ KV = (*MemoryKV)(nil)
