package domain

import "math/big"

// Position is one user's cumulative stake on each side of a single market,
// plus the one-way claim flag guarding against double payout. Shares are 1:1
// with currency units; there is no price curve.
type Position struct {
	YesShares *big.Int `json:"yes_shares"`
	NoShares  *big.Int `json:"no_shares"`
	Claimed   bool     `json:"claimed"`
}

// ZeroPosition is the read-only default returned for a (market, user) pair
// that has never staked. It is never written to storage by a mere read.
func ZeroPosition() Position {
	return Position{
		YesShares: big.NewInt(0),
		NoShares:  big.NewInt(0),
	}
}

// AddShares accumulates amount onto the given side of the position.
func (p *Position) AddShares(side Side, amount *big.Int) {
	switch side {
	case SideYes:
		p.YesShares = new(big.Int).Add(p.YesShares, amount)
	case SideNo:
		p.NoShares = new(big.Int).Add(p.NoShares, amount)
	}
}

// SharesOn returns the user's stake on the given side.
func (p Position) SharesOn(side Side) *big.Int {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// TotalShares returns the user's combined stake across both sides.
func (p Position) TotalShares() *big.Int {
	return new(big.Int).Add(p.YesShares, p.NoShares)
}
