// Package registry implements the market registry over a leased key-value
// ledger store. Lease renewal is a single touch policy applied uniformly on
// every get and put rather than scattered per-operation logic.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/oddsline/settled/internal/domain"
)

// KV is the narrow contract the registry needs from the ledger store: a
// durable byte store whose records carry an expiring lease. Put always
// (re)starts the record's lease; Touch renews leases of records that exist
// and ignores keys that do not, so absence is never materialized.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, val []byte) error
	Touch(ctx context.Context, keys ...string) error
}

// Persisted key layout.
const (
	keyAdmin  = "admin"
	keyToken  = "token"
	keyNextID = "next_market_id"
)

func marketKey(id uint64) string {
	return "market:" + strconv.FormatUint(id, 10)
}

func positionKey(id uint64, user string) string {
	return "position:" + strconv.FormatUint(id, 10) + ":" + user
}

// Registry stores Market and Position records and owns the dense,
// monotonically increasing market id sequence.
type Registry struct {
	kv KV
}

// New creates a Registry over the given ledger store.
func New(kv KV) *Registry {
	return &Registry{kv: kv}
}

// Renew bumps the leases of the singleton admin/token/counter keys. It is
// called by every public engine entry point.
func (r *Registry) Renew(ctx context.Context) error {
	if err := r.kv.Touch(ctx, keyAdmin, keyToken, keyNextID); err != nil {
		return fmt.Errorf("registry: touch singletons: %w", err)
	}
	return nil
}

// InitConfig stores the engine configuration exactly once.
func (r *Registry) InitConfig(ctx context.Context, cfg domain.EngineConfig) error {
	_, ok, err := r.kv.Get(ctx, keyAdmin)
	if err != nil {
		return fmt.Errorf("registry: check admin: %w", err)
	}
	if ok {
		return domain.ErrAlreadyInitialized
	}

	if err := r.kv.Put(ctx, keyAdmin, []byte(cfg.Admin)); err != nil {
		return fmt.Errorf("registry: store admin: %w", err)
	}
	if err := r.kv.Put(ctx, keyToken, []byte(cfg.AssetID)); err != nil {
		return fmt.Errorf("registry: store token: %w", err)
	}
	if err := r.kv.Put(ctx, keyNextID, []byte("0")); err != nil {
		return fmt.Errorf("registry: store counter: %w", err)
	}
	return nil
}

// Config returns the stored engine configuration, or ErrNotInitialized when
// initialize has not been called.
func (r *Registry) Config(ctx context.Context) (domain.EngineConfig, error) {
	admin, ok, err := r.kv.Get(ctx, keyAdmin)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("registry: get admin: %w", err)
	}
	if !ok {
		return domain.EngineConfig{}, domain.ErrNotInitialized
	}
	token, ok, err := r.kv.Get(ctx, keyToken)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("registry: get token: %w", err)
	}
	if !ok {
		return domain.EngineConfig{}, domain.ErrNotInitialized
	}
	return domain.EngineConfig{Admin: string(admin), AssetID: string(token)}, nil
}

// Market returns the market with the given id and renews its lease.
func (r *Registry) Market(ctx context.Context, id uint64) (domain.Market, error) {
	key := marketKey(id)
	data, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return domain.Market{}, fmt.Errorf("registry: get market %d: %w", id, err)
	}
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	if err := r.kv.Touch(ctx, key); err != nil {
		return domain.Market{}, fmt.Errorf("registry: touch market %d: %w", id, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("registry: decode market %d: %w", id, err)
	}
	return m, nil
}

// PutMarket stores a market, starting or renewing its lease.
func (r *Registry) PutMarket(ctx context.Context, id uint64, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("registry: encode market %d: %w", id, err)
	}
	if err := r.kv.Put(ctx, marketKey(id), data); err != nil {
		return fmt.Errorf("registry: put market %d: %w", id, err)
	}
	return nil
}

// Position returns the user's position in the market. A pair that never
// staked yields a zeroed default; the default is not written and no lease is
// started for it.
func (r *Registry) Position(ctx context.Context, id uint64, user string) (domain.Position, error) {
	key := positionKey(id, user)
	data, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return domain.Position{}, fmt.Errorf("registry: get position: %w", err)
	}
	if !ok {
		return domain.ZeroPosition(), nil
	}
	if err := r.kv.Touch(ctx, key); err != nil {
		return domain.Position{}, fmt.Errorf("registry: touch position: %w", err)
	}

	var p domain.Position
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Position{}, fmt.Errorf("registry: decode position: %w", err)
	}
	return p, nil
}

// PutPosition stores a position, starting or renewing its lease.
func (r *Registry) PutPosition(ctx context.Context, id uint64, user string, p domain.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("registry: encode position: %w", err)
	}
	if err := r.kv.Put(ctx, positionKey(id, user), data); err != nil {
		return fmt.Errorf("registry: put position: %w", err)
	}
	return nil
}

// AllocateID returns the next market id and advances the counter by one.
func (r *Registry) AllocateID(ctx context.Context) (uint64, error) {
	next, err := r.MarketCount(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.kv.Put(ctx, keyNextID, []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, fmt.Errorf("registry: advance counter: %w", err)
	}
	return next, nil
}

// MarketCount returns the number of markets created so far.
func (r *Registry) MarketCount(ctx context.Context) (uint64, error) {
	data, ok, err := r.kv.Get(ctx, keyNextID)
	if err != nil {
		return 0, fmt.Errorf("registry: get counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("registry: decode counter: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.Registry = (*Registry)(nil)
