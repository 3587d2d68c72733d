package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trigger indicates what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerManual    Trigger = "MANUAL"
)

// ErrorKind classifies a symbol-level or run-level failure.
type ErrorKind string

const (
	ErrInsufficientData ErrorKind = "INSUFFICIENT_DATA"
	ErrTransient        ErrorKind = "TRANSIENT"
	ErrAuthExpired      ErrorKind = "AUTH_EXPIRED"
	ErrFatal            ErrorKind = "FATAL"
	ErrUnexpected       ErrorKind = "UNEXPECTED"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	StatusOK      RunStatus = "OK"
	StatusPartial RunStatus = "PARTIAL"
	StatusFailed  RunStatus = "FAILED"
)

// SymbolResult is the outcome for one watchlist symbol.
// A failed symbol has Error set and no Bands.
type SymbolResult struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	LastClose decimal.Decimal `json:"last_close"`
	AsOf      time.Time       `json:"as_of"`
	Bands     *Bands          `json:"bands,omitempty"`
	Proximity Proximity       `json:"proximity,omitempty"`

	// Position is where the close sits in the band, 0 at lower and 100 at upper.
	Position         decimal.Decimal `json:"position"`
	DistanceLowerPct decimal.Decimal `json:"distance_lower_pct"`
	DistanceUpperPct decimal.Decimal `json:"distance_upper_pct"`

	Error        ErrorKind `json:"error,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// OK reports whether the symbol was evaluated successfully.
func (r SymbolResult) OK() bool { return r.Error == "" }

// AboveUpper reports whether the close is outside the upper band.
func (r SymbolResult) AboveUpper() bool {
	return r.Bands != nil && r.LastClose.GreaterThan(r.Bands.Upper)
}

// BelowLower reports whether the close is outside the lower band.
func (r SymbolResult) BelowLower() bool {
	return r.Bands != nil && r.LastClose.LessThan(r.Bands.Lower)
}

// RunError is the distinguished run-level failure.
type RunError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
}

// RunReport is the immutable outcome of one scan.
type RunReport struct {
	RunID      string         `json:"run_id"`
	Trigger    Trigger        `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Params     ScanParams     `json:"params"`
	Results    []SymbolResult `json:"results"`
	Status     RunStatus      `json:"status"`
	RunError   *RunError      `json:"run_error,omitempty"`
}

// Counts returns the number of successful and failed symbol results.
func (r *RunReport) Counts() (ok, failed int) {
	for _, res := range r.Results {
		if res.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Matching returns the successful results with the given proximity.
func (r *RunReport) Matching(p Proximity) []SymbolResult {
	var out []SymbolResult
	for _, res := range r.Results {
		if res.OK() && res.Proximity == p {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func (r *RunReport) Failed() []SymbolResult {
	var out []SymbolResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}
