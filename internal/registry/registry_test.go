package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/oddsline/settled/internal/domain"
)

const testTTL = time.Hour

func newTestRegistry(now *time.Time) (*Registry, *MemoryKV) {
	kv := NewMemoryKV(testTTL, func() time.Time { return *now })
	return New(kv), kv
}

func TestInitConfigOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&now)
	ctx := context.Background()

	if _, err := r.Config(ctx); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("Config() before init = %v, want ErrNotInitialized", err)
	}

	if err := r.InitConfig(ctx, domain.EngineConfig{Admin: "admin", AssetID: "usdc"}); err != nil {
		t.Fatalf("InitConfig() error: %v", err)
	}
	err := r.InitConfig(ctx, domain.EngineConfig{Admin: "other", AssetID: "dai"})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("second InitConfig() = %v, want ErrAlreadyInitialized", err)
	}

	cfg, err := r.Config(ctx)
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if cfg.Admin != "admin" || cfg.AssetID != "usdc" {
		t.Errorf("Config() = %+v, want admin/usdc", cfg)
	}
}

func TestAllocateIDAdvancesByOne(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&now)
	ctx := context.Background()

	if err := r.InitConfig(ctx, domain.EngineConfig{Admin: "a", AssetID: "t"}); err != nil {
		t.Fatalf("InitConfig() error: %v", err)
	}

	for want := uint64(0); want < 5; want++ {
		count, err := r.MarketCount(ctx)
		if err != nil {
			t.Fatalf("MarketCount() error: %v", err)
		}
		if count != want {
			t.Fatalf("MarketCount() = %d, want %d", count, want)
		}
		id, err := r.AllocateID(ctx)
		if err != nil {
			t.Fatalf("AllocateID() error: %v", err)
		}
		if id != want {
			t.Fatalf("AllocateID() = %d, want %d", id, want)
		}
	}
}

func TestMarketRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&now)
	ctx := context.Background()

	if _, err := r.Market(ctx, 7); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Fatalf("Market(7) = %v, want ErrMarketNotFound", err)
	}

	m := domain.NewMarket("alice", "will it rain", now.Add(time.Hour), now)
	m.AddStake(domain.SideYes, big.NewInt(5))
	if err := r.PutMarket(ctx, 7, m); err != nil {
		t.Fatalf("PutMarket() error: %v", err)
	}

	got, err := r.Market(ctx, 7)
	if err != nil {
		t.Fatalf("Market() error: %v", err)
	}
	if got.Creator != "alice" || got.Question != "will it rain" {
		t.Errorf("Market() = %+v", got)
	}
	if got.TotalYes.Cmp(big.NewInt(5)) != 0 || got.PoolBalance.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("totals = yes:%s pool:%s, want 5/5", got.TotalYes, got.PoolBalance)
	}
	if got.Status != domain.MarketStatusOpen {
		t.Errorf("status = %s, want open", got.Status)
	}
}

func TestPositionDefaultIsNotStored(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, kv := newTestRegistry(&now)
	ctx := context.Background()

	before := kv.Len()
	pos, err := r.Position(ctx, 0, "nobody")
	if err != nil {
		t.Fatalf("Position() error: %v", err)
	}
	if pos.YesShares.Sign() != 0 || pos.NoShares.Sign() != 0 || pos.Claimed {
		t.Errorf("default position = %+v, want zeroed", pos)
	}
	if kv.Len() != before {
		t.Error("default read materialized a record")
	}

	pos.AddShares(domain.SideNo, big.NewInt(3))
	if err := r.PutPosition(ctx, 0, "nobody", pos); err != nil {
		t.Fatalf("PutPosition() error: %v", err)
	}
	got, err := r.Position(ctx, 0, "nobody")
	if err != nil {
		t.Fatalf("Position() error: %v", err)
	}
	if got.NoShares.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("NoShares = %s, want 3", got.NoShares)
	}
}

func TestReadsRenewLeases(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&now)
	ctx := context.Background()

	m := domain.NewMarket("alice", "q", now.Add(48*time.Hour), now)
	if err := r.PutMarket(ctx, 0, m); err != nil {
		t.Fatalf("PutMarket() error: %v", err)
	}

	// Each read inside the TTL pushes expiry out again.
	for i := 0; i < 3; i++ {
		now = now.Add(testTTL - time.Minute)
		if _, err := r.Market(ctx, 0); err != nil {
			t.Fatalf("Market() at step %d: %v", i, err)
		}
	}

	// Idle past the TTL and the record is evicted.
	now = now.Add(testTTL + time.Minute)
	if _, err := r.Market(ctx, 0); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Fatalf("Market() after expiry = %v, want ErrMarketNotFound", err)
	}
}

func TestRenewTouchesSingletonsOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&now)
	ctx := context.Background()

	if err := r.InitConfig(ctx, domain.EngineConfig{Admin: "a", AssetID: "t"}); err != nil {
		t.Fatalf("InitConfig() error: %v", err)
	}
	if err := r.PutMarket(ctx, 0, domain.NewMarket("alice", "q", now.Add(time.Hour), now)); err != nil {
		t.Fatalf("PutMarket() error: %v", err)
	}

	// Renew only the singletons; the market lease keeps running out.
	for i := 0; i < 3; i++ {
		now = now.Add(testTTL - time.Minute)
		if err := r.Renew(ctx); err != nil {
			t.Fatalf("Renew() error: %v", err)
		}
	}

	if _, err := r.Config(ctx); err != nil {
		t.Errorf("Config() after renewals: %v", err)
	}
	if _, err := r.Market(ctx, 0); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("Market() = %v, want ErrMarketNotFound after un-renewed idle", err)
	}

	// Renewing on an uninitialized store is harmless.
	fresh, _ := newTestRegistry(&now)
	if err := fresh.Renew(ctx); err != nil {
		t.Errorf("Renew() on empty store: %v", err)
	}
}
