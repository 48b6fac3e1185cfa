// Package store persists calculation runs to PostgreSQL. Persistence is
// disabled by default; when enabled every run writes one runs row plus one
// cells row per (trade, column) coordinate, including failed cells so that
// reporting downstream sees the full grid shape.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/result"
)

// Config holds database connection configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns reasonable defaults with persistence disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Store writes runs and result cells to PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// New opens a connection pool and verifies connectivity.
func New(cfg Config) (*Store, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("store: not enabled")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: dsn is required when enabled")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an existing connection, for tests and custom pools.
func NewWithDB(db *sqlx.DB, cfg Config) *Store {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{db: db, timeout: timeout, logger: zerolog.Nop()}
}

// SetLogger attaches a logger.
func (s *Store) SetLogger(logger zerolog.Logger) { s.logger = logger }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id         TEXT PRIMARY KEY,
    valuation_date DATE NOT NULL,
    trade_count    INT NOT NULL,
    column_count   INT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cells (
    run_id    TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    trade_id  TEXT NOT NULL,
    col_name  TEXT NOT NULL,
    measure   TEXT NOT NULL,
    status    TEXT NOT NULL,
    reason    TEXT,
    message   TEXT,
    value     JSONB,
    PRIMARY KEY (run_id, trade_id, col_name)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RunRecord is one persisted run header.
type RunRecord struct {
	RunID         string    `db:"run_id"`
	ValuationDate time.Time `db:"valuation_date"`
	TradeCount    int       `db:"trade_count"`
	ColumnCount   int       `db:"column_count"`
	CreatedAt     time.Time `db:"created_at"`
}

// CellRecord is one persisted result cell.
type CellRecord struct {
	RunID   string `db:"run_id"`
	TradeID string `db:"trade_id"`
	ColName string `db:"col_name"`
	Measure string `db:"measure"`
	Status  string `db:"status"`
	Reason  string `db:"reason"`
	Message string `db:"message"`
	Value   []byte `db:"value"`
}

// SaveRun persists a results grid in one transaction.
func (s *Store) SaveRun(ctx context.Context, valuation time.Time, results *engine.Results) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, valuation_date, trade_count, column_count) VALUES ($1, $2, $3, $4)`,
		results.RunID(), valuation, results.RowCount(), results.ColumnCount())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	columns := results.Columns()
	for row := 0; row < results.RowCount(); row++ {
		for col, column := range columns {
			r := results.MustGet(row, col)
			rec := cellRecord(results.RunID(), results.TradeID(row), column, r)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cells (run_id, trade_id, col_name, measure, status, reason, message, value)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rec.RunID, rec.TradeID, rec.ColName, rec.Measure, rec.Status, rec.Reason, rec.Message, rec.Value)
			if err != nil {
				return fmt.Errorf("insert cell %s/%s: %w", rec.TradeID, rec.ColName, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	s.logger.Info().
		Str("run_id", results.RunID()).
		Int("trades", results.RowCount()).
		Int("columns", results.ColumnCount()).
		Msg("run persisted")
	return nil
}

func cellRecord(runID, tradeID string, column engine.Column, r result.Result) CellRecord {
	rec := CellRecord{
		RunID:   runID,
		TradeID: tradeID,
		ColName: column.Name,
		Measure: string(column.Measure),
	}
	if r.IsFailure() {
		f := r.Failure()
		rec.Status = "failure"
		rec.Reason = string(f.Reason)
		rec.Message = f.Message
		return rec
	}
	rec.Status = "success"
	rec.Value = encodeValue(r.Value())
	return rec
}

// encodeValue serializes a cell value as JSON. Values that do not marshal
// cleanly fall back to their string form.
func encodeValue(v any) []byte {
	if sv, ok := v.(engine.ScenarioValues); ok {
		entries := make([]json.RawMessage, len(sv))
		for i, r := range sv {
			if r.IsFailure() {
				f := r.Failure()
				entries[i], _ = json.Marshal(map[string]string{"reason": string(f.Reason), "message": f.Message})
				continue
			}
			entries[i] = encodeValue(r.Value())
		}
		raw, _ := json.Marshal(entries)
		return raw
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return raw
}

// Runs lists persisted run headers, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var out []RunRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT run_id, valuation_date, trade_count, column_count, created_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Cells returns every persisted cell of one run.
func (s *Store) Cells(ctx context.Context, runID string) ([]CellRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var out []CellRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT run_id, trade_id, col_name, measure, status,
		        COALESCE(reason, '') AS reason, COALESCE(message, '') AS message, value
		 FROM cells WHERE run_id = $1 ORDER BY trade_id, col_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}
	return out, nil
}
