package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Amounts are whole base currency units stored as NUMERIC(39,0), wide enough
// for any 128-bit stake.

func numericFromBig(v *big.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

func bigFromNumeric(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid || n.Int == nil {
		return big.NewInt(0), nil
	}
	if n.NaN {
		return nil, fmt.Errorf("postgres: amount is NaN")
	}

	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		v.Mul(v, exp)
	case n.Exp < 0:
		return nil, fmt.Errorf("postgres: fractional amount %s*10^%d", n.Int, n.Exp)
	}
	return v, nil
}
