// Package fixed implements the scaled-integer decimal type used for
// every price, quantity and notional value in the engine. Values carry
// four fractional digits in an int64, so arithmetic is exact and the
// matching path never touches a float.
//
// All accumulating operations are checked: anything that would leave
// the representable range reports ErrOverflow instead of wrapping.
package fixed

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional decimal digits.
const Scale = 4

// Unit is the scaled representation of 1.
const Unit Value = 10_000

var (
	ErrOverflow  = errors.New("fixed: value out of range")
	ErrPrecision = errors.New("fixed: more than 4 fractional digits")
)

// Value is a decimal number scaled by 10^4.
type Value int64

// FromInt converts a whole number into a Value.
func FromInt(n int64) (Value, error) {
	if n > math.MaxInt64/int64(Unit) || n < math.MinInt64/int64(Unit) {
		return 0, ErrOverflow
	}
	return Value(n) * Unit, nil
}

// Parse converts a decimal string ("100.25") into a Value.
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixed: %w", err)
	}
	scaled := d.Shift(Scale)
	if !scaled.IsInteger() {
		return 0, ErrPrecision
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Value(bi.Int64()), nil
}

// Decimal converts v back into an arbitrary-precision decimal for the
// API boundary.
func (v Value) Decimal() decimal.Decimal {
	return decimal.New(int64(v), -Scale)
}

func (v Value) String() string {
	return v.Decimal().StringFixed(Scale)
}

// Add returns v+o, failing instead of wrapping.
func (v Value) Add(o Value) (Value, error) {
	sum := v + o
	if (o > 0 && sum < v) || (o < 0 && sum > v) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns v-o, failing instead of wrapping.
func (v Value) Sub(o Value) (Value, error) {
	if o == math.MinInt64 {
		return 0, ErrOverflow
	}
	return v.Add(-o)
}

// Mul returns the product of two scaled values, rescaled. This is how
// notional exposure (price x quantity) is computed, so it must detect
// overflow at full 128-bit width before the rescale.
func (v Value) Mul(o Value) (Value, error) {
	neg := (v < 0) != (o < 0)
	a, b := magnitude(v), magnitude(o)

	hi, lo := bits.Mul64(a, b)
	if hi >= uint64(Unit) {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, uint64(Unit))
	if q > math.MaxInt64 {
		return 0, ErrOverflow
	}
	if neg {
		return Value(-int64(q)), nil
	}
	return Value(q), nil
}

// Neg returns -v. The one unrepresentable negation fails rather than
// wrapping back onto itself.
func (v Value) Neg() (Value, error) {
	if v == math.MinInt64 {
		return 0, ErrOverflow
	}
	return -v, nil
}

// IsMultipleOf reports whether v is an exact multiple of step. Used for
// tick-size and lot-size validation; a non-positive step never matches.
func (v Value) IsMultipleOf(step Value) bool {
	if step <= 0 {
		return false
	}
	return v%step == 0
}

func (v Value) IsPositive() bool { return v > 0 }

func magnitude(v Value) uint64 {
	if v < 0 {
		return uint64(-int64(v))
	}
	return uint64(v)
}
