package collector

import (
	"context"
	"time"

	"BollWatch/internal/model"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
)

// loggingSource wraps Source and logs every upstream call
type loggingSource struct {
	logger log.Logger
	next   Source
}

// NewLoggingSource logs each fetch at debug level, failures at error level.
func NewLoggingSource(logger log.Logger, next Source) Source {
	return &loggingSource{logger: logger, next: next}
}

func (s *loggingSource) Name() string { return s.next.Name() }

func (s *loggingSource) FetchDailyCloses(ctx context.Context, symbol string, count int) (points []model.PricePoint, err error) {
	defer func(begin time.Time) {
		lvl := level.Debug
		if err != nil {
			lvl = level.Error
		}
		_ = lvl(s.logger).Log(
			"source", s.next.Name(),
			"method", "FetchDailyCloses",
			"symbol", symbol,
			"count", count,
			"points", len(points),
			"kind", errKind(err),
			"err", err,
			"elapsed", time.Since(begin),
		)
	}(time.Now())
	return s.next.FetchDailyCloses(ctx, symbol, count)
}

// instrumentingSource wraps Source and records request metrics
type instrumentingSource struct {
	reqCount    metrics.Counter
	reqDuration metrics.Histogram
	next        Source
}

// NewInstrumentingSource counts and times each fetch, labelled by source and error kind.
func NewInstrumentingSource(reqCount metrics.Counter, reqDuration metrics.Histogram, next Source) Source {
	return &instrumentingSource{reqCount: reqCount, reqDuration: reqDuration, next: next}
}

func (s *instrumentingSource) Name() string { return s.next.Name() }

func (s *instrumentingSource) FetchDailyCloses(ctx context.Context, symbol string, count int) (points []model.PricePoint, err error) {
	defer s.recordMetrics(time.Now(), &err)
	return s.next.FetchDailyCloses(ctx, symbol, count)
}

func (s *instrumentingSource) recordMetrics(startTime time.Time, errp *error) {
	labels := []string{
		"source", s.next.Name(),
		"error", errKind(*errp),
	}
	s.reqCount.With(labels...).Add(1)
	s.reqDuration.With(labels...).Observe(time.Since(startTime).Seconds())
}

func errKind(err error) string {
	if err == nil {
		return "none"
	}
	return string(KindOf(err))
}
