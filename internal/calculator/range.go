package calculator

import (
	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BandPosition returns where the close sits within the band as a percentage,
// 0 at the lower band and 100 at the upper band. Values outside the band are
// not clamped. A zero-width band reports 50.
func BandPosition(last decimal.Decimal, b model.Bands) decimal.Decimal {
	width := b.Width()
	if width.IsZero() {
		return decimal.NewFromInt(50)
	}
	return last.Sub(b.Lower).Mul(hundred).DivRound(width, 2)
}

// DistancePct returns how far the close is above the lower band and below the
// upper band, each as a percentage of that band's level.
func DistancePct(last decimal.Decimal, b model.Bands) (fromLower, fromUpper decimal.Decimal) {
	if !b.Lower.IsZero() {
		fromLower = last.Sub(b.Lower).Mul(hundred).DivRound(b.Lower, 2)
	}
	if !b.Upper.IsZero() {
		fromUpper = b.Upper.Sub(last).Mul(hundred).DivRound(b.Upper, 2)
	}
	return fromLower, fromUpper
}
