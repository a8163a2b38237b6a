// Package safemath provides checked widened integer arithmetic. Every
// intermediate is a big.Int; results are narrowed back to uint64 only through
// Uint64, which fails with ErrArithmeticOverflow instead of wrapping.
package safemath

import (
	"fmt"
	"math"
	"math/big"

	"github.com/rovshanmuradov/fundly/internal/domain"
)

// Rounding selects the rounding direction of a division.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// U64 widens v.
func U64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// Uint64 narrows v, failing if it does not fit in 64 bits.
func Uint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || v.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("value %s out of uint64 range: %w", v, domain.ErrArithmeticOverflow)
	}
	return v.Uint64(), nil
}

func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func Sub(a, b *big.Int) (*big.Int, error) {
	if b.Cmp(a) > 0 {
		return nil, fmt.Errorf("subtraction underflow %s - %s: %w", a, b, domain.ErrArithmeticOverflow)
	}
	return new(big.Int).Sub(a, b), nil
}

func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

func Div(a, b *big.Int, rounding Rounding) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, fmt.Errorf("division by zero: %w", domain.ErrArithmeticOverflow)
	}
	if rounding == RoundUp {
		n := new(big.Int).Add(a, new(big.Int).Sub(b, big.NewInt(1)))
		return n.Quo(n, b), nil
	}
	return new(big.Int).Quo(a, b), nil
}

// MulDiv computes x*y/denominator without intermediate overflow.
func MulDiv(x, y, denominator *big.Int, rounding Rounding) (*big.Int, error) {
	return Div(Mul(x, y), denominator, rounding)
}

// Sqrt returns floor(sqrt(v)).
func Sqrt(v *big.Int) *big.Int {
	if v.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sqrt(v)
}

// Add64 returns a+b or ErrArithmeticOverflow.
func Add64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("addition overflow %d + %d: %w", a, b, domain.ErrArithmeticOverflow)
	}
	return a + b, nil
}

// Sub64 returns a-b or ErrArithmeticOverflow.
func Sub64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("subtraction underflow %d - %d: %w", a, b, domain.ErrArithmeticOverflow)
	}
	return a - b, nil
}

// BasisPoints returns floor(amount*bps/10000).
func BasisPoints(amount uint64, bps uint16) (uint64, error) {
	v, err := MulDiv(U64(amount), U64(uint64(bps)), U64(domain.MaxBasisPoints), RoundDown)
	if err != nil {
		return 0, err
	}
	return Uint64(v)
}
