package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

func sampleReport(id string) *model.RunReport {
	started := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	return &model.RunReport{
		RunID:      id,
		Trigger:    model.TriggerScheduled,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Params:     model.ScanParams{Period: 20, K: 2, Threshold: 0.02},
		Status:     model.StatusPartial,
		RunError: &model.RunError{
			Kind:        model.ErrAuthExpired,
			Message:     "token expired",
			Remediation: "refresh the access token",
		},
		Results: []model.SymbolResult{
			{
				Symbol:    "700.HK",
				Name:      "Tencent",
				LastClose: decimal.NewFromInt(401),
				AsOf:      started.Add(-24 * time.Hour),
				Bands: &model.Bands{
					Middle: decimal.NewFromInt(390),
					Upper:  decimal.NewFromInt(400),
					Lower:  decimal.NewFromInt(380),
				},
				Proximity:        model.NearUpper,
				Position:         decimal.NewFromInt(105),
				DistanceLowerPct: decimal.RequireFromString("5.53"),
				DistanceUpperPct: decimal.RequireFromString("-0.25"),
			},
			{
				Symbol:       "9988.HK",
				Name:         "Alibaba",
				Error:        model.ErrInsufficientData,
				ErrorMessage: "need 20 closes, got 15",
			},
		},
	}
}

func assertSameReport(t *testing.T, want, got *model.RunReport) {
	t.Helper()
	if got.RunID != want.RunID || got.Status != want.Status || got.Trigger != want.Trigger {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("times mismatch: %v/%v", got.StartedAt, got.FinishedAt)
	}
	if got.Params != want.Params {
		t.Errorf("params mismatch: %+v", got.Params)
	}
	if got.RunError == nil || *got.RunError != *want.RunError {
		t.Errorf("run error mismatch: %+v", got.RunError)
	}
	if len(got.Results) != len(want.Results) {
		t.Fatalf("expected %d results, got %d", len(want.Results), len(got.Results))
	}
	ok := got.Results[0]
	if ok.Bands == nil || !ok.Bands.Upper.Equal(decimal.NewFromInt(400)) || ok.Proximity != model.NearUpper {
		t.Errorf("first result mismatch: %+v", ok)
	}
	if !ok.DistanceUpperPct.Equal(decimal.RequireFromString("-0.25")) {
		t.Errorf("distance mismatch: %s", ok.DistanceUpperPct)
	}
	failed := got.Results[1]
	if failed.Bands != nil || failed.Error != model.ErrInsufficientData {
		t.Errorf("second result mismatch: %+v", failed)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	r := sampleReport("a")
	s.Put(ctx, r)
	got, err := s.Get(ctx)
	if err != nil || got != r {
		t.Errorf("expected stored report, got %v (%v)", got, err)
	}
}

func TestMemoryStore_ConcurrentPutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, b := sampleReport("a"), sampleReport("b")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.Put(ctx, a)
				s.Put(ctx, b)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				r, err := s.Get(ctx)
				if err != nil {
					continue
				}
				if r != a && r != b {
					t.Error("observed a report that was never put")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bollwatch.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty db, got %v", err)
	}

	want := sampleReport("run-1")
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertSameReport(t, want, got)
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bollwatch.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	s.Put(ctx, sampleReport("run-1"))
	second := sampleReport("run-2")
	second.Status = model.StatusOK
	second.RunError = nil
	second.Results = second.Results[:1]
	if err := s.Put(ctx, second); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RunID != "run-2" || got.RunError != nil || len(got.Results) != 1 {
		t.Errorf("expected only run-2 with one result, got %s/%v/%d", got.RunID, got.RunError, len(got.Results))
	}
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, *model.RunReport) error { return f.err }
func (f failingStore) Get(context.Context) (*model.RunReport, error) {
	return nil, f.err
}

func TestCached_MemoryUpdatedWhenDurableFails(t *testing.T) {
	ctx := context.Background()
	c := NewCached(failingStore{err: errors.New("disk full")})
	r := sampleReport("a")
	if err := c.Put(ctx, r); err == nil {
		t.Error("expected durable error to be returned")
	}
	got, err := c.Get(ctx)
	if err != nil || got.RunID != "a" {
		t.Errorf("expected memory copy, got %v (%v)", got, err)
	}
}

func TestCached_WarmFromSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bollwatch.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	s.Put(ctx, sampleReport("persisted"))

	c := NewCached(failingStore{err: ErrNotFound}, s)
	if err := c.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	got, err := c.Get(ctx)
	if err != nil || got.RunID != "persisted" {
		t.Errorf("expected persisted report, got %v (%v)", got, err)
	}
}

func TestCached_EmptyIsNotFound(t *testing.T) {
	c := NewCached()
	if _, err := c.Get(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
