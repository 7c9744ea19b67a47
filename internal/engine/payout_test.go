package engine

import (
	"math/big"
	"testing"

	"github.com/oddsline/settled/internal/domain"
)

func bi(n int64) *big.Int { return big.NewInt(n) }

func TestPayoutWinnerProportionalSplit(t *testing.T) {
	// Pool of 6 staked on yes by three users (1, 2, 3); yes wins.
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideYes,
		TotalYes:    bi(6),
		TotalNo:     bi(0),
		PoolBalance: bi(6),
	}

	tests := []struct {
		name   string
		shares int64
		want   int64
	}{
		{"one share", 1, 1},
		{"two shares", 2, 2},
		{"three shares", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := domain.Position{YesShares: bi(tt.shares), NoShares: bi(0)}
			got := Payout(m, pos)
			if got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("Payout() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestPayoutMixedPoolWinnersTakeAll(t *testing.T) {
	// 1, 2 on yes; 3 on no; yes wins. Winners split the whole pool of 6
	// in proportion to their yes shares: 2 and 4. The loser gets 0.
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideYes,
		TotalYes:    bi(3),
		TotalNo:     bi(3),
		PoolBalance: bi(6),
	}

	alice := domain.Position{YesShares: bi(1), NoShares: bi(0)}
	bob := domain.Position{YesShares: bi(2), NoShares: bi(0)}
	carol := domain.Position{YesShares: bi(0), NoShares: bi(3)}

	if got := Payout(m, alice); got.Cmp(bi(2)) != 0 {
		t.Errorf("alice payout = %s, want 2", got)
	}
	if got := Payout(m, bob); got.Cmp(bi(4)) != 0 {
		t.Errorf("bob payout = %s, want 4", got)
	}
	if got := Payout(m, carol); got.Sign() != 0 {
		t.Errorf("carol payout = %s, want 0", got)
	}
}

func TestPayoutTruncatingDivision(t *testing.T) {
	// Pool of 7 over 3 winning shares: 7*1/3 = 2 truncated, per winner
	// with one share. Remainder stays in the pool.
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideNo,
		TotalYes:    bi(0),
		TotalNo:     bi(3),
		PoolBalance: bi(7),
	}
	pos := domain.Position{YesShares: bi(0), NoShares: bi(1)}
	if got := Payout(m, pos); got.Cmp(bi(2)) != 0 {
		t.Errorf("Payout() = %s, want 2", got)
	}
}

func TestPayoutNoWinnersRefundsProportionally(t *testing.T) {
	// Everyone bet yes but no won: no winning shares exist, so each
	// participant is refunded in proportion to their total stake.
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideNo,
		TotalYes:    bi(10),
		TotalNo:     bi(0),
		PoolBalance: bi(10),
	}
	pos := domain.Position{YesShares: bi(4), NoShares: bi(0)}
	if got := Payout(m, pos); got.Cmp(bi(4)) != 0 {
		t.Errorf("Payout() = %s, want 4", got)
	}
}

func TestPayoutNonParticipantGetsNothing(t *testing.T) {
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideYes,
		TotalYes:    bi(5),
		TotalNo:     bi(5),
		PoolBalance: bi(10),
	}
	pos := domain.ZeroPosition()
	if got := Payout(m, pos); got.Sign() != 0 {
		t.Errorf("Payout() = %s, want 0", got)
	}
}

func TestPayoutEmptyMarket(t *testing.T) {
	// Resolved market with no stakes at all: zero for everyone, no
	// division by zero.
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideYes,
		TotalYes:    bi(0),
		TotalNo:     bi(0),
		PoolBalance: bi(0),
	}
	if got := Payout(m, domain.ZeroPosition()); got.Sign() != 0 {
		t.Errorf("Payout() = %s, want 0", got)
	}
}

func TestPayoutLargeAmounts(t *testing.T) {
	// Amounts beyond int64 range must not overflow.
	huge, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	m := domain.Market{
		Status:      domain.MarketStatusResolved,
		Outcome:     domain.SideYes,
		TotalYes:    new(big.Int).Set(huge),
		TotalNo:     bi(0),
		PoolBalance: new(big.Int).Set(huge),
	}
	pos := domain.Position{YesShares: new(big.Int).Set(huge), NoShares: bi(0)}
	if got := Payout(m, pos); got.Cmp(huge) != 0 {
		t.Errorf("Payout() = %s, want %s", got, huge)
	}
}
