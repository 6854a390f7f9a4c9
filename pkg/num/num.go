// Package num provides overflow-checked fixed-point integer arithmetic.
//
// All monetary values in the engine (balances, reserves, prices, quantities,
// LP shares) are non-negative int64 fixed-point integers. Intermediate
// products that can exceed 64 bits go through math/big; any final result
// that does not fit back into int64 is reported as ErrOverflow rather than
// silently wrapping.
package num

import (
	"errors"
	"math"
	"math/big"
)

// ErrOverflow is returned when a checked operation does not fit in int64.
var ErrOverflow = errors.New("arithmetic overflow")

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrOverflow.
func CheckedSub(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, ErrOverflow
	}
	if b > 0 && a < math.MinInt64+b {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a {
		return 0, ErrOverflow
	}
	return r, nil
}

// MulDiv returns floor(a*b/den). The product is computed in full precision,
// so it never overflows internally; only a quotient outside int64 fails.
// den must be positive.
func MulDiv(a, b, den int64) (int64, error) {
	if den <= 0 {
		return 0, ErrOverflow
	}
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Quo(p, big.NewInt(den))
	if !p.IsInt64() {
		return 0, ErrOverflow
	}
	return p.Int64(), nil
}

// SqrtProduct returns floor(sqrt(a*b)) for non-negative a, b.
// Used for initial LP share minting (geometric mean, Uniswap V2 style).
func SqrtProduct(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrOverflow
	}
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Sqrt(p)
	if !p.IsInt64() {
		return 0, ErrOverflow
	}
	return p.Int64(), nil
}

// ProductGrew reports whether a2*b2 >= a1*b1, comparing in full precision.
// The constant-product invariant check after a swap.
func ProductGrew(a1, b1, a2, b2 int64) bool {
	before := new(big.Int).Mul(big.NewInt(a1), big.NewInt(b1))
	after := new(big.Int).Mul(big.NewInt(a2), big.NewInt(b2))
	return after.Cmp(before) >= 0
}
