package calculator

import (
	"errors"

	"github.com/shopspring/decimal"
)

// divPrecision is the number of decimal places kept on division.
const divPrecision = 16

// ErrInvalidParams is returned for a non-positive period or a negative multiplier.
var ErrInvalidParams = errors.New("invalid indicator parameters")

// Mean computes the arithmetic mean of the last period prices.
func Mean(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, ErrInvalidParams
	}
	if len(prices) < period {
		return decimal.Zero, ErrInsufficientData
	}
	sum := decimal.Zero
	for _, p := range prices[len(prices)-period:] {
		sum = sum.Add(p)
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), divPrecision), nil
}

// PopulationStdDev computes the standard deviation of the last period prices,
// dividing by period.
func PopulationStdDev(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	mean, err := Mean(prices, period)
	if err != nil {
		return decimal.Zero, err
	}
	ss := decimal.Zero
	for _, p := range prices[len(prices)-period:] {
		d := p.Sub(mean)
		ss = ss.Add(d.Mul(d))
	}
	variance := ss.DivRound(decimal.NewFromInt(int64(period)), divPrecision)
	return Sqrt(variance)
}
