package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"BollWatch/internal/model"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

func TestParquetExporter_WritesRows(t *testing.T) {
	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	r := &model.RunReport{
		RunID:      "run-1",
		FinishedAt: at,
		Status:     model.StatusPartial,
		Results: []model.SymbolResult{
			{
				Symbol:    "700.HK",
				Name:      "Tencent",
				AsOf:      at.Add(-24 * time.Hour),
				LastClose: decimal.NewFromInt(401),
				Bands: &model.Bands{
					Lower:  decimal.NewFromInt(380),
					Middle: decimal.NewFromInt(390),
					Upper:  decimal.NewFromInt(400),
				},
				Proximity: model.NearUpper,
				Position:  decimal.NewFromInt(105),
			},
			{Symbol: "9988.HK", Name: "Alibaba", Error: model.ErrFatal, ErrorMessage: "unknown symbol"},
		},
	}

	path := filepath.Join(t.TempDir(), "out", "latest.parquet")
	exp := NewParquetExporter(path)
	if err := exp.Notify(context.Background(), r); err != nil {
		t.Fatalf("export: %v", err)
	}
	// second run replaces the file
	r.RunID = "run-2"
	r.Results = r.Results[:1]
	if err := exp.Notify(context.Background(), r); err != nil {
		t.Fatalf("export: %v", err)
	}

	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.RunID != "run-2" || got.Symbol != "700.HK" || got.Upper != 400 || got.Proximity != "NEAR_UPPER" {
		t.Errorf("unexpected row %+v", got)
	}
}

func TestRows_FailedSymbol(t *testing.T) {
	r := &model.RunReport{Results: []model.SymbolResult{
		{Symbol: "9988.HK", Error: model.ErrTransient, ErrorMessage: "HTTP 503"},
	}}
	rows := Rows(r)
	if len(rows) != 1 || rows[0].ErrorKind != "TRANSIENT" || rows[0].Upper != 0 || rows[0].Proximity != "" {
		t.Errorf("unexpected rows %+v", rows)
	}
}
