package model

import "github.com/shopspring/decimal"

// Bands is one Bollinger Bands computation. Lower <= Middle <= Upper.
type Bands struct {
	Middle decimal.Decimal `json:"middle"`
	Upper  decimal.Decimal `json:"upper"`
	Lower  decimal.Decimal `json:"lower"`
}

// Width returns Upper - Lower.
func (b Bands) Width() decimal.Decimal {
	return b.Upper.Sub(b.Lower)
}

// Proximity classifies where a close sits relative to the bands.
type Proximity string

const (
	NearUpper Proximity = "NEAR_UPPER"
	NearLower Proximity = "NEAR_LOWER"
	Neutral   Proximity = "NEUTRAL"
)

// ScanParams are the indicator parameters used for a run.
type ScanParams struct {
	Period    int     `json:"period"`
	K         float64 `json:"k"`
	Threshold float64 `json:"proximity_threshold"`
}
