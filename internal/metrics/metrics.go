package metrics

import (
	"BollWatch/internal/model"

	kitmetrics "github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the scanner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: status, trigger
	RunDuration      prometheus.Histogram
	SymbolsTotal     *prometheus.CounterVec // labels: outcome
	RunInProgress    prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	TriggersRejected prometheus.Counter
	NotifyFailures   *prometheus.CounterVec // labels: notifier

	// Quote source calls, recorded through the go-kit instrumenting middleware.
	FetchTotal    *prometheus.CounterVec   // labels: source, error
	FetchDuration *prometheus.HistogramVec // labels: source, error
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bollwatch_runs_total",
			Help: "Completed scan runs by status and trigger",
		}, []string{"status", "trigger"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bollwatch_run_duration_seconds",
			Help:    "Wall time of a scan run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SymbolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bollwatch_symbols_total",
			Help: "Symbol results by proximity or error kind",
		}, []string{"outcome"}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bollwatch_run_in_progress",
			Help: "1 while a scan run holds the run lock",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bollwatch_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		TriggersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bollwatch_triggers_rejected_total",
			Help: "Triggers refused because a run was already in progress",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bollwatch_notify_failures_total",
			Help: "Notification deliveries that failed",
		}, []string{"notifier"}),
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bollwatch_fetch_requests_total",
			Help: "Upstream quote requests by source and error kind",
		}, []string{"source", "error"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bollwatch_fetch_duration_seconds",
			Help:    "Upstream quote request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source", "error"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.SymbolsTotal,
		m.RunInProgress,
		m.LastRunTimestamp,
		m.TriggersRejected,
		m.NotifyFailures,
		m.FetchTotal,
		m.FetchDuration,
	)
	return m
}

// FetchCounter adapts FetchTotal for the go-kit instrumenting middleware.
func (m *Metrics) FetchCounter() kitmetrics.Counter {
	return kitprometheus.NewCounter(m.FetchTotal)
}

// FetchHistogram adapts FetchDuration for the go-kit instrumenting middleware.
func (m *Metrics) FetchHistogram() kitmetrics.Histogram {
	return kitprometheus.NewHistogram(m.FetchDuration)
}

// SetInProgress flips the in-progress gauge.
func (m *Metrics) SetInProgress(running bool) {
	if m == nil {
		return
	}
	if running {
		m.RunInProgress.Set(1)
	} else {
		m.RunInProgress.Set(0)
	}
}

// TriggerRejected counts a refused trigger.
func (m *Metrics) TriggerRejected() {
	if m == nil {
		return
	}
	m.TriggersRejected.Inc()
}

// NotifyFailed counts a failed delivery.
func (m *Metrics) NotifyFailed(notifier string) {
	if m == nil {
		return
	}
	m.NotifyFailures.WithLabelValues(notifier).Inc()
}

// ObserveRun records a finished report.
func (m *Metrics) ObserveRun(r *model.RunReport) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(r.Status), string(r.Trigger)).Inc()
	m.RunDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	m.LastRunTimestamp.Set(float64(r.FinishedAt.Unix()))
	for _, res := range r.Results {
		outcome := string(res.Proximity)
		if !res.OK() {
			outcome = string(res.Error)
		}
		m.SymbolsTotal.WithLabelValues(outcome).Inc()
	}
}
