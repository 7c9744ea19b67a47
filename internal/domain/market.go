package domain

import (
	"fmt"
	"math/big"
	"time"
)

// Side is one of the two mutually exclusive outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide converts wire input into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideYes, SideNo:
		return Side(s), nil
	default:
		return "", fmt.Errorf("domain: invalid side %q", s)
	}
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is one binary-outcome proposition. Stake totals are kept in base
// currency units as arbitrary-precision integers; they are non-negative by
// construction and PoolBalance == TotalYes + TotalNo while the market is
// open. After resolution PoolBalance is frozen and used as the payout base.
type Market struct {
	Creator     string       `json:"creator"`
	Question    string       `json:"question"`
	Deadline    time.Time    `json:"deadline"`
	Status      MarketStatus `json:"status"`
	Outcome     Side         `json:"outcome,omitempty"` // set only once resolved
	TotalYes    *big.Int     `json:"total_yes"`
	TotalNo     *big.Int     `json:"total_no"`
	PoolBalance *big.Int     `json:"pool_balance"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewMarket returns an open market with zeroed stake totals.
func NewMarket(creator, question string, deadline, now time.Time) Market {
	return Market{
		Creator:     creator,
		Question:    question,
		Deadline:    deadline,
		Status:      MarketStatusOpen,
		TotalYes:    big.NewInt(0),
		TotalNo:     big.NewInt(0),
		PoolBalance: big.NewInt(0),
		CreatedAt:   now,
	}
}

// Resolved reports whether the market has reached its terminal state.
func (m Market) Resolved() bool {
	return m.Status == MarketStatusResolved
}

// AddStake accumulates amount onto the given side and the pool balance.
func (m *Market) AddStake(side Side, amount *big.Int) {
	switch side {
	case SideYes:
		m.TotalYes = new(big.Int).Add(m.TotalYes, amount)
	case SideNo:
		m.TotalNo = new(big.Int).Add(m.TotalNo, amount)
	}
	m.PoolBalance = new(big.Int).Add(m.PoolBalance, amount)
}

// TotalOn returns the cumulative stake on the given side.
func (m Market) TotalOn(side Side) *big.Int {
	if side == SideYes {
		return m.TotalYes
	}
	return m.TotalNo
}
