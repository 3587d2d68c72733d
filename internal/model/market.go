package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one daily close.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Close decimal.Decimal `json:"close"`
}

// PriceSeries holds the closes fetched for one symbol, oldest first.
type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []decimal.Decimal {
	closes := make([]decimal.Decimal, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// Last returns the most recent point. The series must not be empty.
func (s PriceSeries) Last() PricePoint {
	return s.Points[len(s.Points)-1]
}

// WatchEntry is a configured watchlist symbol.
type WatchEntry struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	Name   string `yaml:"name" json:"name"`
}

// DisplayName is the label shown in reports. US tickers are shown by code.
func (w WatchEntry) DisplayName() string {
	if code, ok := strings.CutSuffix(w.Symbol, ".US"); ok {
		return code
	}
	if w.Name != "" {
		return w.Name
	}
	return w.Symbol
}
