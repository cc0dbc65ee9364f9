// Package persistence sinks composite runs into Postgres. The table is a
// full overwrite per run, mirroring the CSV artifact: no append or
// incremental mutation across runs.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/aibps/aibps/internal/pipeline"
	"github.com/aibps/aibps/internal/timeseries"
)

// Store writes pipeline results to Postgres.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore wraps an open sqlx handle.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Open connects to Postgres with the lib/pq driver.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewStore(db, timeout), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun replaces the persisted composite table with res in one
// transaction: run header upsert, wholesale point delete, then inserts.
func (s *Store) SaveRun(ctx context.Context, res *pipeline.Result) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	weightsJSON, err := json.Marshal(res.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pressure_runs (run_id, created_at, weights) VALUES ($1, now(), $2)`,
		res.RunID, weightsJSON); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pressure_points`); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}

	pillars := make([]string, 0, len(res.Pillars))
	for pillar := range res.Pillars {
		pillars = append(pillars, pillar)
	}
	sort.Strings(pillars)

	const insert = `INSERT INTO pressure_points (run_id, ts, series, value) VALUES ($1, $2, $3, $4)`
	for i, ts := range res.Grid {
		_, comp := res.Composite.At(i)
		if timeseries.IsMissing(comp) {
			continue
		}
		for _, pillar := range pillars {
			v, _ := res.Pillars[pillar].Value(ts)
			if timeseries.IsMissing(v) {
				continue
			}
			if _, err := tx.ExecContext(ctx, insert, res.RunID, ts, pillar, v); err != nil {
				return fmt.Errorf("insert pillar point: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, insert, res.RunID, ts, "Composite", comp); err != nil {
			return fmt.Errorf("insert composite point: %w", err)
		}
		_, smoothed := res.Smoothed.At(i)
		if !timeseries.IsMissing(smoothed) {
			if _, err := tx.ExecContext(ctx, insert, res.RunID, ts, "Composite_RA", smoothed); err != nil {
				return fmt.Errorf("insert smoothed point: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}
