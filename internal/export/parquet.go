// Package export writes the latest run's results to a Parquet file for
// offline analysis. The file is replaced on every run.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"BollWatch/internal/model"

	"github.com/parquet-go/parquet-go"
)

// Row is one symbol result. Prices are float64 for downstream tooling.
type Row struct {
	RunID       string  `parquet:"run_id"`
	RunStatus   string  `parquet:"run_status"`
	FinishedAt  int64   `parquet:"finished_at"` // Unix milliseconds
	Symbol      string  `parquet:"symbol"`
	Name        string  `parquet:"name"`
	AsOf        int64   `parquet:"as_of,optional"`
	LastClose   float64 `parquet:"last_close,optional"`
	Lower       float64 `parquet:"lower,optional"`
	Middle      float64 `parquet:"middle,optional"`
	Upper       float64 `parquet:"upper,optional"`
	Proximity   string  `parquet:"proximity,optional"`
	Position    float64 `parquet:"position,optional"`
	DistLower   float64 `parquet:"dist_lower_pct,optional"`
	DistUpper   float64 `parquet:"dist_upper_pct,optional"`
	ErrorKind   string  `parquet:"error_kind,optional"`
	ErrorDetail string  `parquet:"error_message,optional"`
}

// ParquetExporter is a notifier that writes each report to Path.
type ParquetExporter struct {
	Path string
}

func NewParquetExporter(path string) *ParquetExporter {
	return &ParquetExporter{Path: path}
}

func (p *ParquetExporter) Name() string { return "parquet" }

func (p *ParquetExporter) Notify(_ context.Context, r *model.RunReport) error {
	rows := Rows(r)
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp := p.Path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// Rows flattens a report in result order.
func Rows(r *model.RunReport) []Row {
	rows := make([]Row, 0, len(r.Results))
	for _, res := range r.Results {
		row := Row{
			RunID:       r.RunID,
			RunStatus:   string(r.Status),
			FinishedAt:  r.FinishedAt.UnixMilli(),
			Symbol:      res.Symbol,
			Name:        res.Name,
			ErrorKind:   string(res.Error),
			ErrorDetail: res.ErrorMessage,
		}
		if res.OK() {
			row.AsOf = res.AsOf.UnixMilli()
			row.LastClose = res.LastClose.InexactFloat64()
			row.Proximity = string(res.Proximity)
			row.Position = res.Position.InexactFloat64()
			row.DistLower = res.DistanceLowerPct.InexactFloat64()
			row.DistUpper = res.DistanceUpperPct.InexactFloat64()
		}
		if res.Bands != nil {
			row.Lower = res.Bands.Lower.InexactFloat64()
			row.Middle = res.Bands.Middle.InexactFloat64()
			row.Upper = res.Bands.Upper.InexactFloat64()
		}
		rows = append(rows, row)
	}
	return rows
}
