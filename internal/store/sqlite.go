package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the latest report to a SQLite database. Only one run
// is kept; each Put replaces it in a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL lets the dashboard read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS latest_run (
			id                INTEGER PRIMARY KEY CHECK (id = 1),
			run_id            TEXT NOT NULL,
			run_trigger       TEXT NOT NULL,
			started_at        TEXT NOT NULL,
			finished_at       TEXT NOT NULL,
			period            INTEGER,
			k                 REAL,
			threshold         REAL,
			status            TEXT NOT NULL,
			error_kind        TEXT,
			error_message     TEXT,
			error_remediation TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS latest_results (
			position      INTEGER PRIMARY KEY,
			symbol        TEXT NOT NULL,
			name          TEXT,
			last_close    TEXT,
			as_of         TEXT,
			middle        TEXT,
			upper         TEXT,
			lower         TEXT,
			proximity     TEXT,
			band_position TEXT,
			dist_lower    TEXT,
			dist_upper    TEXT,
			error_kind    TEXT,
			error_message TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, r *model.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var errKind, errMsg, errFix string
	if r.RunError != nil {
		errKind, errMsg, errFix = string(r.RunError.Kind), r.RunError.Message, r.RunError.Remediation
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO latest_run
		(id, run_id, run_trigger, started_at, finished_at, period, k, threshold,
		 status, error_kind, error_message, error_remediation)
		VALUES (1,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, string(r.Trigger), formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Params.Period, r.Params.K, r.Params.Threshold,
		string(r.Status), errKind, errMsg, errFix,
	); err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM latest_results`); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	for i, res := range r.Results {
		var middle, upper, lower sql.NullString
		if res.Bands != nil {
			middle = sql.NullString{String: res.Bands.Middle.String(), Valid: true}
			upper = sql.NullString{String: res.Bands.Upper.String(), Valid: true}
			lower = sql.NullString{String: res.Bands.Lower.String(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO latest_results
			(position, symbol, name, last_close, as_of, middle, upper, lower, proximity,
			 band_position, dist_lower, dist_upper, error_kind, error_message)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			i, res.Symbol, res.Name, res.LastClose.String(), formatTime(res.AsOf),
			middle, upper, lower, string(res.Proximity),
			res.Position.String(), res.DistanceLowerPct.String(), res.DistanceUpperPct.String(),
			string(res.Error), res.ErrorMessage,
		); err != nil {
			return fmt.Errorf("write result %s: %w", res.Symbol, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context) (*model.RunReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		r                      model.RunReport
		trigger, status        string
		started, finished      string
		errKind, errMsg, errFx string
	)
	err = tx.QueryRowContext(ctx, `SELECT run_id, run_trigger, started_at, finished_at, period, k, threshold,
		status, error_kind, error_message, error_remediation FROM latest_run WHERE id = 1`).Scan(
		&r.RunID, &trigger, &started, &finished, &r.Params.Period, &r.Params.K, &r.Params.Threshold,
		&status, &errKind, &errMsg, &errFx,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	r.Trigger = model.Trigger(trigger)
	r.Status = model.RunStatus(status)
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	if errKind != "" {
		r.RunError = &model.RunError{Kind: model.ErrorKind(errKind), Message: errMsg, Remediation: errFx}
	}

	rows, err := tx.QueryContext(ctx, `SELECT symbol, name, last_close, as_of, middle, upper, lower,
		proximity, band_position, dist_lower, dist_upper, error_kind, error_message
		FROM latest_results ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res                           model.SymbolResult
			lastClose, asOf, prox         string
			middle, upper, lower          sql.NullString
			pos, distLower, distUpper, ek string
		)
		if err := rows.Scan(&res.Symbol, &res.Name, &lastClose, &asOf, &middle, &upper, &lower,
			&prox, &pos, &distLower, &distUpper, &ek, &res.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.LastClose = dec(lastClose)
		res.AsOf = parseTime(asOf)
		res.Proximity = model.Proximity(prox)
		res.Position = dec(pos)
		res.DistanceLowerPct = dec(distLower)
		res.DistanceUpperPct = dec(distUpper)
		res.Error = model.ErrorKind(ek)
		if middle.Valid {
			res.Bands = &model.Bands{
				Middle: dec(middle.String),
				Upper:  dec(upper.String),
				Lower:  dec(lower.String),
			}
		}
		r.Results = append(r.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
