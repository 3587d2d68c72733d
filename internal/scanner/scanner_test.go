package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BollWatch/internal/collector"
	"BollWatch/internal/model"
	"BollWatch/internal/store"

	"github.com/shopspring/decimal"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// nearUpperCloses: mean 390, stddev 5, last 401.
func nearUpperCloses() []float64 {
	vals := append(repeat(395, 6), repeat(385, 8)...)
	return append(vals, 394, 387, 388, 390, 390, 401)
}

// boundaryCloses: mean 390, stddev 5, last 399 (exactly upper - 0.05*width).
func boundaryCloses() []float64 {
	vals := append(repeat(395, 7), repeat(385, 9)...)
	return append(vals, 393, 387, 391, 399)
}

func series(symbol string, closes []float64) model.PriceSeries {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = model.PricePoint{Time: start.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return model.PriceSeries{Symbol: symbol, Points: pts}
}

type fakeFetcher struct {
	mu      sync.Mutex
	closes  map[string][]float64
	errs    map[string]error
	panics  map[string]bool
	calls   map[string]int
	block   chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		closes: map[string][]float64{},
		errs:   map[string]error{},
		panics: map[string]bool{},
		calls:  map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, symbol string, period int) (model.PriceSeries, error) {
	f.mu.Lock()
	f.calls[symbol]++
	started, block := f.started, f.block
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return model.PriceSeries{}, ctx.Err()
		}
	}
	if f.panics[symbol] {
		panic("boom in " + symbol)
	}
	if err, ok := f.errs[symbol]; ok {
		return model.PriceSeries{}, err
	}
	return series(symbol, f.closes[symbol]), nil
}

func (f *fakeFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type recordingNotifier struct {
	mu      sync.Mutex
	reports []*model.RunReport
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, r *model.RunReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reports)
}

type fixedCreds struct{ c model.Credential }

func (f fixedCreds) Current() model.Credential { return f.c }

type failingStore struct{}

func (failingStore) Put(context.Context, *model.RunReport) error { return errors.New("disk full") }
func (failingStore) Get(context.Context) (*model.RunReport, error) {
	return nil, store.ErrNotFound
}

var defaultParams = model.ScanParams{Period: 20, K: 2, Threshold: 0.02}

func watch(symbols ...string) []model.WatchEntry {
	out := make([]model.WatchEntry, len(symbols))
	for i, s := range symbols {
		out[i] = model.WatchEntry{Symbol: s, Name: s}
	}
	return out
}

func newTestScanner(f Fetcher, n Notifier, symbols ...string) (*Scanner, *store.MemoryStore) {
	st := store.NewMemoryStore()
	s := NewScanner(context.Background(), watch(symbols...), defaultParams, f, st)
	s.Notifier = n
	return s, st
}

func TestRun_AuthExpiredStopsRun(t *testing.T) {
	f := newFakeFetcher()
	f.closes["700.HK"] = nearUpperCloses()
	f.errs["AAPL.US"] = &collector.FetchError{Kind: model.ErrAuthExpired, Symbol: "AAPL.US", Status: 401, Err: errors.New("token expired")}
	f.closes["9988.HK"] = nearUpperCloses()
	n := &recordingNotifier{}
	s, st := newTestScanner(f, n, "700.HK", "AAPL.US", "9988.HK")

	r, err := s.Run(context.Background(), model.TriggerScheduled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Wait()

	if r.Status != model.StatusPartial {
		t.Errorf("expected PARTIAL, got %s", r.Status)
	}
	if r.RunError == nil || r.RunError.Kind != model.ErrAuthExpired || r.RunError.Remediation == "" {
		t.Fatalf("expected AUTH_EXPIRED run error with remediation, got %+v", r.RunError)
	}
	if len(r.Results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(r.Results))
	}
	got := r.Results[0]
	if got.Symbol != "700.HK" || got.Proximity != model.NearUpper {
		t.Errorf("expected 700.HK NEAR_UPPER, got %s %s", got.Symbol, got.Proximity)
	}
	if !got.Bands.Upper.Equal(decimal.NewFromInt(400)) || !got.Bands.Lower.Equal(decimal.NewFromInt(380)) {
		t.Errorf("unexpected bands: %+v", got.Bands)
	}
	if f.callCount("9988.HK") != 0 {
		t.Error("symbols after the auth failure must not be fetched")
	}
	if s.State() != StateAborted {
		t.Errorf("expected ABORTED, got %s", s.State())
	}
	stored, err := st.Get(context.Background())
	if err != nil || stored.RunID != r.RunID {
		t.Errorf("report not stored: %v", err)
	}
	if n.count() != 1 {
		t.Errorf("expected one notification, got %d", n.count())
	}
}

func TestRun_AllSucceed(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	f.closes["B"] = repeat(50, 25)
	f.closes["C"] = boundaryCloses()
	s, _ := newTestScanner(f, nil, "A", "B", "C")
	s.Workers = 3

	r, err := s.Run(context.Background(), model.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != model.StatusOK || r.RunError != nil {
		t.Errorf("expected OK without run error, got %s %+v", r.Status, r.RunError)
	}
	want := []struct {
		symbol string
		prox   model.Proximity
	}{
		{"A", model.NearUpper},
		{"B", model.NearUpper}, // zero-width band
		{"C", model.Neutral},
	}
	if len(r.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(r.Results))
	}
	for i, w := range want {
		if r.Results[i].Symbol != w.symbol || r.Results[i].Proximity != w.prox {
			t.Errorf("result %d: expected %s %s, got %s %s", i, w.symbol, w.prox, r.Results[i].Symbol, r.Results[i].Proximity)
		}
	}
	if s.State() != StateCompleted {
		t.Errorf("expected COMPLETED, got %s", s.State())
	}
	if r.Trigger != model.TriggerManual || r.RunID == "" || r.FinishedAt.Before(r.StartedAt) {
		t.Errorf("bad report header: %+v", r)
	}
}

func TestRun_InsufficientDataIsPartial(t *testing.T) {
	src := &collector.MockSource{Closes: map[string][]float64{
		"SHORT.HK": repeat(100, 15),
		"LONG.HK":  nearUpperCloses(),
	}}
	c := collector.NewCollector(src, collector.Options{})
	s, _ := newTestScanner(c, nil, "SHORT.HK", "LONG.HK")

	r, err := s.Run(context.Background(), model.TriggerScheduled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != model.StatusPartial {
		t.Errorf("expected PARTIAL, got %s", r.Status)
	}
	if len(r.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(r.Results))
	}
	short := r.Results[0]
	if short.Error != model.ErrInsufficientData || short.Bands != nil {
		t.Errorf("expected INSUFFICIENT_DATA without bands, got %+v", short)
	}
	if !r.Results[1].OK() {
		t.Errorf("second symbol should succeed: %+v", r.Results[1])
	}
	if r.RunError != nil {
		t.Errorf("symbol errors must not set a run error: %+v", r.RunError)
	}
}

func TestRun_AllFailIsFailed(t *testing.T) {
	f := newFakeFetcher()
	fatal := &collector.FetchError{Kind: model.ErrFatal, Err: errors.New("unknown symbol")}
	f.errs["X"] = fatal
	f.errs["Y"] = &collector.FetchError{Kind: model.ErrTransient, Err: errors.New("503")}
	s, _ := newTestScanner(f, nil, "X", "Y")

	r, _ := s.Run(context.Background(), model.TriggerScheduled)
	if r.Status != model.StatusFailed {
		t.Errorf("expected FAILED, got %s", r.Status)
	}
	if len(r.Results) != 2 || r.Results[0].Error != model.ErrFatal || r.Results[1].Error != model.ErrTransient {
		t.Errorf("unexpected results: %+v", r.Results)
	}
	if s.State() != StateCompleted {
		t.Errorf("all-failed run still completes, got %s", s.State())
	}
}

func TestRun_EmptyWatchlistIsOK(t *testing.T) {
	s, _ := newTestScanner(newFakeFetcher(), nil)
	r, _ := s.Run(context.Background(), model.TriggerScheduled)
	if r.Status != model.StatusOK || len(r.Results) != 0 {
		t.Errorf("expected OK with no results, got %s/%d", r.Status, len(r.Results))
	}
}

func TestTrigger_SingleFlight(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	started := f.started
	n := &recordingNotifier{}
	s, st := newTestScanner(f, n, "A")

	if err := s.Trigger(model.TriggerManual); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	<-started
	if s.State() != StateRunning {
		t.Errorf("expected RUNNING, got %s", s.State())
	}
	if err := s.Trigger(model.TriggerManual); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second trigger: expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := s.Run(context.Background(), model.TriggerScheduled); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("scheduled run: expected ErrAlreadyRunning, got %v", err)
	}

	close(f.block)
	s.Wait()

	if n.count() != 1 {
		t.Errorf("expected exactly one notification, got %d", n.count())
	}
	if f.callCount("A") != 1 {
		t.Errorf("expected one fetch, got %d", f.callCount("A"))
	}
	r, err := st.Get(context.Background())
	if err != nil || r.Trigger != model.TriggerManual {
		t.Errorf("expected the manual report stored, got %v (%v)", r, err)
	}
	if s.State() != StateCompleted {
		t.Errorf("expected COMPLETED, got %s", s.State())
	}
}

func TestRun_ConcurrentCallersGetOneRun(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	started := f.started
	s, _ := newTestScanner(f, nil, "A")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ran, rejected int
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.Run(context.Background(), model.TriggerScheduled); err == nil {
			mu.Lock()
			ran++
			mu.Unlock()
		}
	}()
	<-started
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Run(context.Background(), model.TriggerManual)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrAlreadyRunning) {
				rejected++
			} else {
				ran++
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.block)
	wg.Wait()

	if ran != 1 || rejected != 10 {
		t.Errorf("expected 1 run and 10 rejections, got %d/%d", ran, rejected)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	f.closes["B"] = boundaryCloses()
	s, _ := newTestScanner(f, nil, "A", "B")

	first, _ := s.Run(context.Background(), model.TriggerScheduled)
	second, _ := s.Run(context.Background(), model.TriggerScheduled)
	if first.RunID == second.RunID {
		t.Error("each run needs its own id")
	}
	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]
		if a.Proximity != b.Proximity || !a.Bands.Upper.Equal(b.Bands.Upper) ||
			!a.Bands.Middle.Equal(b.Bands.Middle) || !a.Bands.Lower.Equal(b.Bands.Lower) {
			t.Errorf("result %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
}

func TestRun_BoundaryClassifiedNearUpper(t *testing.T) {
	f := newFakeFetcher()
	f.closes["EDGE"] = boundaryCloses()
	s, _ := newTestScanner(f, nil, "EDGE")
	s.Params.Threshold = 0.05

	r, _ := s.Run(context.Background(), model.TriggerScheduled)
	if len(r.Results) != 1 || r.Results[0].Proximity != model.NearUpper {
		t.Errorf("expected NEAR_UPPER at the exact boundary, got %+v", r.Results)
	}
}

func TestRun_PanicIsUnexpectedAndReleasesLock(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	f.panics["BAD"] = true
	s, _ := newTestScanner(f, nil, "A", "BAD")

	r, err := s.Run(context.Background(), model.TriggerScheduled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != model.StatusFailed || r.RunError == nil || r.RunError.Kind != model.ErrUnexpected {
		t.Errorf("expected FAILED/UNEXPECTED, got %s %+v", r.Status, r.RunError)
	}
	if s.State() != StateAborted {
		t.Errorf("expected ABORTED, got %s", s.State())
	}

	delete(f.panics, "BAD")
	f.closes["BAD"] = nearUpperCloses()
	if _, err := s.Run(context.Background(), model.TriggerScheduled); err != nil {
		t.Errorf("lock should be free after a panic: %v", err)
	}
}

func TestRun_ExpiredCredentialAbortsBeforeFetch(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	s, _ := newTestScanner(f, nil, "A")
	past := time.Now().Add(-time.Hour)
	s.Credentials = fixedCreds{c: model.Credential{AccessToken: "old", ExpiresAt: &past}}

	r, _ := s.Run(context.Background(), model.TriggerScheduled)
	if r.Status != model.StatusPartial || r.RunError == nil || r.RunError.Kind != model.ErrAuthExpired {
		t.Errorf("expected PARTIAL/AUTH_EXPIRED, got %s %+v", r.Status, r.RunError)
	}
	if f.callCount("A") != 0 {
		t.Error("no fetch expected with an expired credential")
	}
}

func TestRun_CancelledContextFails(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	s, _ := newTestScanner(f, nil, "A", "B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := s.Run(ctx, model.TriggerScheduled)
	if r.Status != model.StatusFailed || r.RunError == nil || r.RunError.Kind != model.ErrUnexpected {
		t.Errorf("expected FAILED/UNEXPECTED, got %s %+v", r.Status, r.RunError)
	}
}

func TestRun_StoreFailureStillNotifies(t *testing.T) {
	f := newFakeFetcher()
	f.closes["A"] = nearUpperCloses()
	n := &recordingNotifier{err: errors.New("smtp down")}
	s := NewScanner(context.Background(), watch("A"), defaultParams, f, failingStore{})
	s.Notifier = n

	r, err := s.Run(context.Background(), model.TriggerScheduled)
	if err != nil || r.Status != model.StatusOK {
		t.Fatalf("expected OK run, got %v %v", r, err)
	}
	s.Wait()
	if n.count() != 1 {
		t.Errorf("expected notification despite store failure, got %d", n.count())
	}
}

func TestRunLock(t *testing.T) {
	var l RunLock
	if l.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", l.State())
	}
	if !l.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if l.TryAcquire() {
		t.Error("second acquire should fail")
	}
	l.Release(StateCompleted)
	if l.State() != StateCompleted {
		t.Errorf("expected COMPLETED, got %s", l.State())
	}
	if !l.TryAcquire() {
		t.Error("acquire after release should succeed")
	}
}
