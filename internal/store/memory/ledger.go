// Package memory provides in-process implementations of the storage and
// messaging interfaces. They back ephemeral mode, where the engine runs
// without Redis or Postgres, and double as fixtures in tests.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/oddsline/settled/internal/domain"
)

// Ledger is an in-memory token ledger keyed by asset and holder.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]map[string]*big.Int
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[string]*big.Int)}
}

// Transfer moves amount from one holder to another. It fails with
// ErrInsufficientBalance when the payer cannot cover the amount, and with
// ErrInvalidAmount for nil or non-positive amounts.
func (l *Ledger) Transfer(ctx context.Context, asset, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balance(asset, from)
	if balance.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}

	l.set(asset, from, new(big.Int).Sub(balance, amount))
	l.set(asset, to, new(big.Int).Add(l.balance(asset, to), amount))
	return nil
}

// Mint credits amount to the holder out of thin air.
func (l *Ledger) Mint(ctx context.Context, asset, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.set(asset, to, new(big.Int).Add(l.balance(asset, to), amount))
	return nil
}

// Balance returns the holder's current balance, zero if never credited.
func (l *Ledger) Balance(ctx context.Context, asset, holder string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(asset, holder)), nil
}

// balance returns the stored balance without copying. Callers hold l.mu.
func (l *Ledger) balance(asset, holder string) *big.Int {
	if holders, ok := l.balances[asset]; ok {
		if b, ok := holders[holder]; ok {
			return b
		}
	}
	return big.NewInt(0)
}

// set stores the balance. Callers hold l.mu.
func (l *Ledger) set(asset, holder string, b *big.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[string]*big.Int)
		l.balances[asset] = holders
	}
	holders[holder] = b
}

var _ domain.TokenLedger = (*Ledger)(nil)
