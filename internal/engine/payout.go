package engine

import (
	"math/big"

	"github.com/oddsline/settled/internal/domain"
)

// Payout computes the claimable amount for a position in a resolved market.
// It is a pure function of the frozen market totals and the position.
//
// All arithmetic is integer with truncating division; rounding dust stays in
// custody and is never redistributed, so the sum of all payouts never exceeds
// the pool balance. Inputs are structurally non-negative.
func Payout(m domain.Market, pos domain.Position) *big.Int {
	totalWinning := m.TotalOn(m.Outcome)

	// Nobody staked the winning side: refund everyone proportionally to
	// their share of total participation.
	if totalWinning.Sign() == 0 {
		participation := new(big.Int).Add(m.TotalYes, m.TotalNo)
		if participation.Sign() == 0 {
			return big.NewInt(0)
		}
		out := new(big.Int).Mul(pos.TotalShares(), m.PoolBalance)
		return out.Quo(out, participation)
	}

	userShares := pos.SharesOn(m.Outcome)
	if userShares.Sign() == 0 {
		return big.NewInt(0)
	}

	out := new(big.Int).Mul(userShares, m.PoolBalance)
	return out.Quo(out, totalWinning)
}
