package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// pq is the PostgreSQL driver
	_ "github.com/lib/pq"
	// sqlite is the pure Go SQLite driver, handy for local sweeps
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no results are stored for a run.
var ErrRunNotFound = errors.New("sweep run not found")

const createSweepResultsTable = `
	CREATE TABLE IF NOT EXISTS sweep_results (
		run_id          TEXT NOT NULL,
		experiment      TEXT NOT NULL,
		dataset         TEXT NOT NULL,
		epoch           INTEGER NOT NULL,
		avg             INTEGER NOT NULL,
		metric          TEXT NOT NULL,
		decoding_method TEXT NOT NULL,
		value           DOUBLE PRECISION NOT NULL,
		source          TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, experiment, dataset, epoch, avg)
	)
`

// SweepRunInfo describes the run a set of stored results belongs to.
type SweepRunInfo struct {
	RunID          string
	Metric         string
	DecodingMethod string
}

// SQLResultStore persists sweep results in PostgreSQL or SQLite.
type SQLResultStore struct {
	DB *sql.DB
}

// InitDB opens and pings the database. driver is "postgres" or "sqlite".
func InitDB(driver, dataSourceName string) (*SQLResultStore, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want postgres or sqlite)", driver)
	}

	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLResultStore{DB: db}, nil
}

// EnsureSchema creates the sweep_results table when it does not exist.
func (s *SQLResultStore) EnsureSchema(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("database connection not initialized")
	}
	if _, err := s.DB.ExecContext(ctx, createSweepResultsTable); err != nil {
		return fmt.Errorf("failed to create sweep_results table: %w", err)
	}
	return nil
}

// SaveRunResults upserts every result of rs under the given run.
func (s *SQLResultStore) SaveRunResults(ctx context.Context, info SweepRunInfo, rs *ResultSet) error {
	if s.DB == nil {
		return errors.New("database connection not initialized")
	}

	query := `
		INSERT INTO sweep_results (
			run_id, experiment, dataset, epoch, avg,
			metric, decoding_method, value, source, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, experiment, dataset, epoch, avg)
		DO UPDATE SET value = excluded.value, source = excluded.source
	`

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for run %s: %w", info.RunID, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for run %s: %w", info.RunID, err)
	}
	defer stmt.Close()

	createdAt := time.Now().UTC()
	for _, k := range rs.Keys() {
		r, _ := rs.Get(k)
		_, err := stmt.ExecContext(ctx,
			info.RunID,
			k.Experiment,
			k.Dataset,
			k.Epoch,
			k.Avg,
			info.Metric,
			info.DecodingMethod,
			r.Value,
			r.Source,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save result %s for run %s: %w", k, info.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results for run %s: %w", info.RunID, err)
	}
	return nil
}

// LoadRunResults reads back every result stored for runID.
func (s *SQLResultStore) LoadRunResults(ctx context.Context, runID string) (*ResultSet, error) {
	if s.DB == nil {
		return nil, errors.New("database connection not initialized")
	}

	query := `
		SELECT experiment, dataset, epoch, avg, value, source
		FROM sweep_results
		WHERE run_id = $1
	`
	rows, err := s.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for run %s: %w", runID, err)
	}
	defer rows.Close()

	rs := NewResultSet()
	for rows.Next() {
		var k ResultKey
		var r Result
		if err := rows.Scan(&k.Experiment, &k.Dataset, &k.Epoch, &k.Avg, &r.Value, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan result row for run %s: %w", runID, err)
		}
		rs.Put(k, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for run %s: %w", runID, err)
	}
	if rs.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rs, nil
}

// LatestRunID returns the run with the most recent results.
func (s *SQLResultStore) LatestRunID(ctx context.Context) (string, error) {
	if s.DB == nil {
		return "", errors.New("database connection not initialized")
	}

	query := `
		SELECT run_id
		FROM sweep_results
		GROUP BY run_id
		ORDER BY MAX(created_at) DESC
		LIMIT 1
	`
	var runID string
	if err := s.DB.QueryRowContext(ctx, query).Scan(&runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRunNotFound
		}
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return runID, nil
}

// Close releases the database connection.
func (s *SQLResultStore) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
