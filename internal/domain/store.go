package domain

import (
	"context"
	"math/big"
	"time"
)

// EngineConfig is the initialize-once singleton record holding the resolving
// authority and the staked asset. Every public operation requires it.
type EngineConfig struct {
	Admin   string `json:"admin"`
	AssetID string `json:"asset_id"`
}

// Registry owns the sequence of markets and stores Market and Position
// records in the leased ledger store. Every read or write of a persistent
// record renews its storage lease; Renew bumps the singleton keys and is
// called on every public entry point.
type Registry interface {
	// Renew extends the leases of the singleton admin/token/counter keys.
	Renew(ctx context.Context) error

	// InitConfig stores the engine configuration exactly once. It returns
	// ErrAlreadyInitialized on any subsequent call.
	InitConfig(ctx context.Context, cfg EngineConfig) error

	// Config returns the stored engine configuration, or ErrNotInitialized.
	Config(ctx context.Context) (EngineConfig, error)

	// Market returns the market with the given id, or ErrMarketNotFound.
	Market(ctx context.Context, id uint64) (Market, error)
	PutMarket(ctx context.Context, id uint64, m Market) error

	// Position returns the user's position in the market, or a zeroed
	// default if none exists. The default is never written to storage.
	Position(ctx context.Context, id uint64, user string) (Position, error)
	PutPosition(ctx context.Context, id uint64, user string, p Position) error

	// AllocateID returns the next market id and advances the process-wide
	// counter by exactly one.
	AllocateID(ctx context.Context) (uint64, error)

	// MarketCount returns the number of markets created so far. Ids are
	// dense and zero-based, so this equals the next unallocated id.
	MarketCount(ctx context.Context) (uint64, error)
}

// TokenLedger is the fungible asset-transfer collaborator. Transfer moves
// stake atomically and fails the whole operation with ErrInsufficientBalance
// if the payer cannot cover the amount.
type TokenLedger interface {
	Transfer(ctx context.Context, asset, from, to string, amount *big.Int) error
	Mint(ctx context.Context, asset, to string, amount *big.Int) error
	Balance(ctx context.Context, asset, holder string) (*big.Int, error)
}

// EventPublisher emits fire-and-forget notifications for external indexers.
// Publication failures never abort the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSubscriber delivers published events to in-process consumers such as
// the WebSocket hub and the settlement archiver.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic EventTopic) (<-chan []byte, error)
}

// LockManager provides the per-invocation serialization the engine core
// assumes from its host. The core itself takes no locks.
type LockManager interface {
	// Acquire obtains the lock for key, returning an unlock function, or
	// ErrLockHeld when another invocation holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
