package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddsline/settled/internal/registry"
)

// Ledger implements registry.KV on Redis. Every record carries an expiring
// lease: Put writes with a TTL, and Touch renews the TTL of records that
// exist. EXPIRE on an absent key is a no-op, so a record that has never been
// written is never leased.
//
// Key schema: ledger:{key}
type Ledger struct {
	rdb   *redis.Client
	lease time.Duration
}

// NewLedger creates a Ledger whose records live for lease unless renewed.
func NewLedger(c *Client, lease time.Duration) *Ledger {
	return &Ledger{rdb: c.Underlying(), lease: lease}
}

func ledgerKey(key string) string { return "ledger:" + key }

// Get returns the record for key, or ok=false when it does not exist.
func (l *Ledger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := l.rdb.Get(ctx, ledgerKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, true, nil
}

// Put stores the record and starts (or restarts) its lease.
func (l *Ledger) Put(ctx context.Context, key string, val []byte) error {
	if err := l.rdb.Set(ctx, ledgerKey(key), val, l.lease).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Touch renews the leases of the given records in one round trip. Keys that
// do not exist are skipped by Redis itself.
func (l *Ledger) Touch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := l.rdb.Pipeline()
	for _, key := range keys {
		pipe.Expire(ctx, ledgerKey(key), l.lease)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: touch leases: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ registry.KV = (*Ledger)(nil)
