package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/oddsline/settled/internal/domain"
)

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	if err := l.Mint(ctx, "usdc", "alice", big.NewInt(100)); err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if err := l.Transfer(ctx, "usdc", "alice", "bob", big.NewInt(30)); err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	a, _ := l.Balance(ctx, "usdc", "alice")
	b, _ := l.Balance(ctx, "usdc", "bob")
	if a.Int64() != 70 || b.Int64() != 30 {
		t.Errorf("balances = %s/%s, want 70/30", a, b)
	}

	err := l.Transfer(ctx, "usdc", "alice", "bob", big.NewInt(1000))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraft = %v, want ErrInsufficientBalance", err)
	}
	// A failed transfer moves nothing.
	a, _ = l.Balance(ctx, "usdc", "alice")
	if a.Int64() != 70 {
		t.Errorf("alice after failed transfer = %s, want 70", a)
	}

	if err := l.Transfer(ctx, "usdc", "alice", "bob", big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero transfer = %v, want ErrInvalidAmount", err)
	}
	if err := l.Transfer(ctx, "usdc", "alice", "bob", nil); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("nil transfer = %v, want ErrInvalidAmount", err)
	}
}

func TestLedgerAssetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	if err := l.Mint(ctx, "usdc", "alice", big.NewInt(10)); err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	other, _ := l.Balance(ctx, "dai", "alice")
	if other.Sign() != 0 {
		t.Errorf("dai balance = %s, want 0", other)
	}
}

func TestBusDeliversToTopicAndWildcard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus()
	buyCh, err := b.Subscribe(ctx, domain.EventBuy)
	if err != nil {
		t.Fatalf("Subscribe(buy) error: %v", err)
	}
	allCh, err := b.Subscribe(ctx, domain.EventTopicAll)
	if err != nil {
		t.Fatalf("Subscribe(*) error: %v", err)
	}
	otherCh, err := b.Subscribe(ctx, domain.EventResolve)
	if err != nil {
		t.Fatalf("Subscribe(resolve) error: %v", err)
	}

	ev := domain.NewBuyEvent(3, "alice", domain.SideYes, big.NewInt(5), time.Now())
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case data := <-buyCh:
		if len(data) == 0 {
			t.Error("empty payload on buy channel")
		}
	case <-time.After(time.Second):
		t.Fatal("buy subscriber got nothing")
	}
	select {
	case <-allCh:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber got nothing")
	}
	select {
	case <-otherCh:
		t.Fatal("resolve subscriber received a buy event")
	default:
	}
}

func TestBusSubscriptionClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()
	ch, err := b.Subscribe(ctx, domain.EventCreate)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewLockManager()

	unlock, err := m.Acquire(ctx, "market:1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if _, err := m.Acquire(ctx, "market:1", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire() = %v, want ErrLockHeld", err)
	}

	// A different key is unaffected.
	unlock2, err := m.Acquire(ctx, "market:2", time.Minute)
	if err != nil {
		t.Fatalf("Acquire(other key) error: %v", err)
	}
	unlock2()

	unlock()
	if _, err := m.Acquire(ctx, "market:1", time.Minute); err != nil {
		t.Fatalf("Acquire() after unlock error: %v", err)
	}
}

func TestLockManagerTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewLockManager()
	m.clock = func() time.Time { return now }

	if _, err := m.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	// A crashed holder's lock lapses after its TTL.
	now = now.Add(2 * time.Minute)
	if _, err := m.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Acquire() after expiry error: %v", err)
	}
}
