package calculator

import (
	"errors"
	"fmt"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned when fewer closes than the period are supplied.
var ErrInsufficientData = errors.New("insufficient data")

// Bollinger computes the bands over the last period closes:
// middle = SMA, upper/lower = middle ± k * population stddev.
func Bollinger(closes []decimal.Decimal, period int, k float64) (model.Bands, error) {
	if period <= 0 || k < 0 {
		return model.Bands{}, fmt.Errorf("%w: period=%d k=%v", ErrInvalidParams, period, k)
	}
	if len(closes) < period {
		return model.Bands{}, fmt.Errorf("%w: need %d closes, have %d", ErrInsufficientData, period, len(closes))
	}

	middle, err := Mean(closes, period)
	if err != nil {
		return model.Bands{}, err
	}
	sd, err := PopulationStdDev(closes, period)
	if err != nil {
		return model.Bands{}, err
	}
	offset := sd.Mul(decimal.NewFromFloat(k))
	return model.Bands{
		Middle: middle,
		Upper:  middle.Add(offset),
		Lower:  middle.Sub(offset),
	}, nil
}
