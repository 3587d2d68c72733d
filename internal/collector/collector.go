package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// extraBars is how many closes beyond the period are requested, so a few
// holidays or null bars still leave enough data.
const extraBars = 5

// MockSource returns fixed closes per symbol for development and testing.
// Symbols without closes or an error get a gentle generated series.
type MockSource struct {
	mu     sync.Mutex
	Closes map[string][]float64
	Errs   map[string]error
	Calls  map[string]int
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) FetchDailyCloses(_ context.Context, symbol string, count int) ([]model.PricePoint, error) {
	m.mu.Lock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[symbol]++
	m.mu.Unlock()

	if err, ok := m.Errs[symbol]; ok {
		return nil, err
	}
	closes, ok := m.Closes[symbol]
	if !ok {
		closes = generateMockCloses(100, count)
	}
	return mockPoints(closes), nil
}

// CallCount returns how many fetches were made for symbol.
func (m *MockSource) CallCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[symbol]
}

func mockPoints(closes []float64) []model.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = model.PricePoint{Time: start.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return points
}

func generateMockCloses(base float64, count int) []float64 {
	closes := make([]float64, count)
	for i := range closes {
		closes[i] = base * (1 + float64(i-count/2)*0.001)
	}
	return closes
}

// Options tune the collector. Zero values take the defaults.
type Options struct {
	Retry          RetryPolicy
	FetchTimeout   time.Duration
	RequestSpacing time.Duration
}

// Collector fetches price series through a Source with throttling,
// per-attempt timeouts and retry of transient failures.
type Collector struct {
	Source  Source
	policy  RetryPolicy
	timeout time.Duration
	limiter *rate.Limiter
}

// NewCollector creates a new Collector.
func NewCollector(src Source, opts Options) *Collector {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RequestSpacing > 0 {
		limit = rate.Every(opts.RequestSpacing)
	}
	return &Collector{
		Source:  src,
		policy:  opts.Retry,
		timeout: opts.FetchTimeout,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fetch returns at least period ascending closes for symbol, or a *FetchError.
func (c *Collector) Fetch(ctx context.Context, symbol string, period int) (model.PriceSeries, error) {
	var points []model.PricePoint
	err := Retry(ctx, c.policy, IsRetryable, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return newFetchError(model.ErrTransient, symbol, 0, err)
		}
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		pts, err := c.Source.FetchDailyCloses(actx, symbol, period+extraBars)
		if err != nil {
			return err
		}
		points = pts
		return nil
	})
	if err != nil {
		return model.PriceSeries{}, err
	}

	points = normalize(points)
	if len(points) < period {
		return model.PriceSeries{}, newFetchError(model.ErrInsufficientData, symbol, 0,
			fmt.Errorf("need %d closes, got %d", period, len(points)))
	}
	return model.PriceSeries{Symbol: symbol, Points: points}, nil
}

// normalize sorts ascending and drops duplicate timestamps, keeping the last seen.
func normalize(points []model.PricePoint) []model.PricePoint {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	out := points[:0]
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
