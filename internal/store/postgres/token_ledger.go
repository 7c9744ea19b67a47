package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsline/settled/internal/domain"
)

// TokenLedger implements domain.TokenLedger on a balances table. A transfer
// runs in a single transaction with the payer row locked, so it either moves
// the full amount or fails with ErrInsufficientBalance and changes nothing.
type TokenLedger struct {
	pool *pgxpool.Pool
}

// NewTokenLedger creates a TokenLedger backed by the given connection pool.
func NewTokenLedger(pool *pgxpool.Pool) *TokenLedger {
	return &TokenLedger{pool: pool}
}

// Transfer moves amount of asset from one holder to another.
func (l *TokenLedger) Transfer(ctx context.Context, asset, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	var current pgtype.Numeric
	err = tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE asset = $1 AND holder = $2 FOR UPDATE`,
		asset, from,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInsufficientBalance
		}
		return fmt.Errorf("postgres: lock payer balance: %w", err)
	}

	balance, err := bigFromNumeric(current)
	if err != nil {
		return fmt.Errorf("postgres: payer balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}

	remaining := new(big.Int).Sub(balance, amount)
	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = $3, updated_at = NOW() WHERE asset = $1 AND holder = $2`,
		asset, from, numericFromBig(remaining),
	); err != nil {
		return fmt.Errorf("postgres: debit payer: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (asset, holder, amount, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (asset, holder) DO UPDATE SET
			amount     = balances.amount + EXCLUDED.amount,
			updated_at = NOW()`,
		asset, to, numericFromBig(amount),
	); err != nil {
		return fmt.Errorf("postgres: credit payee: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// Mint credits freshly issued units of asset to a holder. Used by the test
// faucet; a production deployment would disable the faucet surface instead.
func (l *TokenLedger) Mint(ctx context.Context, asset, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO balances (asset, holder, amount, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (asset, holder) DO UPDATE SET
			amount     = balances.amount + EXCLUDED.amount,
			updated_at = NOW()`,
		asset, to, numericFromBig(amount),
	); err != nil {
		return fmt.Errorf("postgres: mint: %w", err)
	}
	return nil
}

// Balance returns the holder's balance of asset, zero if no row exists.
func (l *TokenLedger) Balance(ctx context.Context, asset, holder string) (*big.Int, error) {
	var n pgtype.Numeric
	err := l.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE asset = $1 AND holder = $2`,
		asset, holder,
	).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}

	balance, err := bigFromNumeric(n)
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}
	return balance, nil
}

// Compile-time interface check.
var _ domain.TokenLedger = (*TokenLedger)(nil)
