package scanner

import (
	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

// proximityRules are checked in order; the first match wins, so a close
// within tolerance of both bands (narrow or zero-width band) is NEAR_UPPER.
var proximityRules = []struct {
	Proximity model.Proximity
	Match     func(last decimal.Decimal, b model.Bands, tol decimal.Decimal) bool
}{
	{model.NearUpper, func(last decimal.Decimal, b model.Bands, tol decimal.Decimal) bool {
		return last.GreaterThanOrEqual(b.Upper.Sub(tol))
	}},
	{model.NearLower, func(last decimal.Decimal, b model.Bands, tol decimal.Decimal) bool {
		return last.LessThanOrEqual(b.Lower.Add(tol))
	}},
}

// Classify returns the proximity of last to the bands. The tolerance is
// threshold times the band width.
func Classify(last decimal.Decimal, b model.Bands, threshold float64) model.Proximity {
	tol := b.Width().Mul(decimal.NewFromFloat(threshold))
	for _, r := range proximityRules {
		if r.Match(last, b, tol) {
			return r.Proximity
		}
	}
	return model.Neutral
}
