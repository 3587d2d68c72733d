package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"BollWatch/internal/calculator"
	"BollWatch/internal/collector"
	"BollWatch/internal/metrics"
	"BollWatch/internal/model"
	"BollWatch/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned when a trigger arrives while a run holds the lock.
var ErrAlreadyRunning = errors.New("scan already running")

// AuthRemediation is shown to the user when a run stops on an expired token.
const AuthRemediation = "The quote API access token has expired. Open the token update page and paste a fresh token, then trigger a manual scan."

// Fetcher fetches a price series with at least period closes.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, period int) (model.PriceSeries, error)
}

// Notifier delivers a finished report.
type Notifier interface {
	Notify(ctx context.Context, r *model.RunReport) error
}

// CredentialSource exposes the current credential for the pre-flight expiry check.
type CredentialSource interface {
	Current() model.Credential
}

// Scanner runs the watchlist scan pipeline with single-flight semantics.
type Scanner struct {
	Watchlist   []model.WatchEntry
	Params      model.ScanParams
	Workers     int
	Fetcher     Fetcher
	Store       store.Store
	Notifier    Notifier
	Credentials CredentialSource
	Metrics     *metrics.Metrics

	// Ctx is the parent context for background runs and notifications.
	Ctx           context.Context
	NotifyTimeout time.Duration

	lock RunLock
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewScanner creates a Scanner. Notifier, Credentials and Metrics are optional.
func NewScanner(ctx context.Context, watchlist []model.WatchEntry, params model.ScanParams, f Fetcher, st store.Store) *Scanner {
	return &Scanner{
		Watchlist:     watchlist,
		Params:        params,
		Workers:       1,
		Fetcher:       f,
		Store:         st,
		Ctx:           ctx,
		NotifyTimeout: 2 * time.Minute,
		now:           time.Now,
	}
}

// State returns the run lifecycle state.
func (s *Scanner) State() State { return s.lock.State() }

// Run executes a scan and blocks until the report is stored. Notification
// happens in the background after Run returns.
func (s *Scanner) Run(ctx context.Context, trigger model.Trigger) (*model.RunReport, error) {
	if !s.lock.TryAcquire() {
		s.Metrics.TriggerRejected()
		return nil, ErrAlreadyRunning
	}
	return s.execute(ctx, trigger), nil
}

// Trigger starts a scan in the background and returns as soon as the run
// lock is held.
func (s *Scanner) Trigger(trigger model.Trigger) error {
	if !s.lock.TryAcquire() {
		s.Metrics.TriggerRejected()
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.Ctx, trigger)
	}()
	return nil
}

// Wait blocks until background runs and notifications have finished.
func (s *Scanner) Wait() { s.wg.Wait() }

// execute runs a scan whose lock is already held.
func (s *Scanner) execute(ctx context.Context, trigger model.Trigger) *model.RunReport {
	r := s.finish(ctx, trigger)
	s.notify(r)
	return r
}

// finish scans, stores the report and releases the lock on every path.
func (s *Scanner) finish(ctx context.Context, trigger model.Trigger) *model.RunReport {
	final := StateAborted
	s.Metrics.SetInProgress(true)
	defer func() {
		s.lock.Release(final)
		s.Metrics.SetInProgress(false)
	}()

	r := &model.RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now(),
		Params:    s.Params,
	}
	log.Printf("[INFO] scan %s started (%s, %d symbols)", r.RunID, trigger, len(s.Watchlist))

	final = s.scan(ctx, r)
	r.FinishedAt = s.now()

	okCount, failed := r.Counts()
	log.Printf("[INFO] scan %s finished: %s, %d ok, %d failed, %v", r.RunID, r.Status, okCount, failed, r.FinishedAt.Sub(r.StartedAt))
	if r.RunError != nil {
		log.Printf("[WARN] scan %s: %s: %s", r.RunID, r.RunError.Kind, r.RunError.Message)
	}

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.Store.Put(putCtx, r); err != nil {
		log.Printf("[ERROR] store report %s: %v", r.RunID, err)
	}
	s.Metrics.ObserveRun(r)
	return r
}

// scan fills r.Results, r.Status and r.RunError and returns the final state.
func (s *Scanner) scan(ctx context.Context, r *model.RunReport) (final State) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[ERROR] scan %s panicked: %v\n%s", r.RunID, p, debug.Stack())
			r.Status = model.StatusFailed
			r.RunError = &model.RunError{Kind: model.ErrUnexpected, Message: fmt.Sprint(p)}
			final = StateAborted
		}
	}()

	if s.Credentials != nil {
		if c := s.Credentials.Current(); c.Expired(s.now()) {
			r.Status = model.StatusPartial
			r.RunError = authError(fmt.Sprintf("access token expired at %s", c.ExpiresAt.Format(time.RFC3339)))
			return StateAborted
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		authErr  error
		panicVal any
		results  = make([]*model.SymbolResult, len(s.Watchlist))
	)

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	for i, entry := range s.Watchlist {
		i, entry := i, entry
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("[ERROR] evaluate %s panicked: %v\n%s", entry.Symbol, p, debug.Stack())
					mu.Lock()
					if panicVal == nil {
						panicVal = p
					}
					mu.Unlock()
					cancel()
				}
			}()
			if runCtx.Err() != nil {
				return nil
			}

			res, err := s.evaluate(runCtx, entry)
			if res.Error == model.ErrAuthExpired {
				mu.Lock()
				if authErr == nil {
					authErr = err
				}
				mu.Unlock()
				cancel()
				return nil
			}
			if !res.OK() && runCtx.Err() != nil {
				// interrupted by an abort elsewhere; not a result of its own
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	g.Wait()

	for _, res := range results {
		if res != nil {
			r.Results = append(r.Results, *res)
		}
	}

	switch {
	case panicVal != nil:
		r.Status = model.StatusFailed
		r.RunError = &model.RunError{Kind: model.ErrUnexpected, Message: fmt.Sprint(panicVal)}
		return StateAborted
	case authErr != nil:
		r.Status = model.StatusPartial
		r.RunError = authError(authErr.Error())
		return StateAborted
	case ctx.Err() != nil:
		r.Status = model.StatusFailed
		r.RunError = &model.RunError{Kind: model.ErrUnexpected, Message: fmt.Sprintf("run cancelled: %v", ctx.Err())}
		return StateAborted
	}

	r.Status = statusFor(r.Results, len(s.Watchlist))
	return StateCompleted
}

// evaluate fetches, computes and classifies one symbol. The returned error
// is the cause when the result carries one.
func (s *Scanner) evaluate(ctx context.Context, entry model.WatchEntry) (model.SymbolResult, error) {
	res := model.SymbolResult{Symbol: entry.Symbol, Name: entry.DisplayName()}

	series, err := s.Fetcher.Fetch(ctx, entry.Symbol, s.Params.Period)
	if err != nil {
		res.Error = collector.KindOf(err)
		res.ErrorMessage = err.Error()
		log.Printf("[WARN] %s: %v", entry.Symbol, err)
		return res, err
	}

	last := series.Last()
	res.LastClose = last.Close
	res.AsOf = last.Time

	bands, err := calculator.Bollinger(series.Closes(), s.Params.Period, s.Params.K)
	if err != nil {
		res.Error = model.ErrUnexpected
		if errors.Is(err, calculator.ErrInsufficientData) {
			res.Error = model.ErrInsufficientData
		}
		res.ErrorMessage = err.Error()
		return res, err
	}

	res.Bands = &bands
	res.Proximity = Classify(last.Close, bands, s.Params.Threshold)
	res.Position = calculator.BandPosition(last.Close, bands)
	res.DistanceLowerPct, res.DistanceUpperPct = calculator.DistancePct(last.Close, bands)
	return res, nil
}

// statusFor maps success counts to a status: all succeeded is OK, none is FAILED.
func statusFor(results []model.SymbolResult, total int) model.RunStatus {
	ok := 0
	for _, res := range results {
		if res.OK() {
			ok++
		}
	}
	switch {
	case ok == total:
		return model.StatusOK
	case ok == 0:
		return model.StatusFailed
	default:
		return model.StatusPartial
	}
}

func authError(msg string) *model.RunError {
	return &model.RunError{Kind: model.ErrAuthExpired, Message: msg, Remediation: AuthRemediation}
}

// notify delivers the report in the background. Failures are logged only.
func (s *Scanner) notify(r *model.RunReport) {
	if s.Notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.Ctx), s.NotifyTimeout)
		defer cancel()
		if err := s.Notifier.Notify(ctx, r); err != nil {
			log.Printf("[ERROR] notify report %s: %v", r.RunID, err)
		}
	}()
}
