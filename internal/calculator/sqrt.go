package calculator

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

const (
	sqrtPrecision  = 12
	sqrtIterations = 64
)

var errNegativeSqrt = errors.New("square root of negative value")

// Sqrt returns the square root of d rounded to a fixed number of places.
// Perfect squares come back exact.
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, errNegativeSqrt
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}

	f, _ := d.Float64()
	x := decimal.NewFromFloat(math.Sqrt(f))
	if !x.IsPositive() {
		x = d
	}
	two := decimal.NewFromInt(2)
	for i := 0; i < sqrtIterations; i++ {
		next := x.Add(d.DivRound(x, divPrecision)).DivRound(two, divPrecision)
		if next.Equal(x) {
			break
		}
		x = next
	}

	for places := int32(0); places <= sqrtPrecision; places++ {
		c := x.Round(places)
		if c.Mul(c).Equal(d) {
			return c, nil
		}
	}
	return x.Round(sqrtPrecision), nil
}
