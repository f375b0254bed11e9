// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history keeps a Postgres audit trail of report runs.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Run is one report generation attempt.
type Run struct {
	ID         int64
	RunID      string
	ReportDate time.Time
	Status     string
	Rows       int
	Sends      int
	Forwards   int
	Degraded   []string
	ReportPath string
	UploadKey  string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store persists runs in the report_runs table.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and prepares the schema.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s, err := NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a run store backed by the given pool. It ensures the
// report_runs table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure report_runs schema: %w", err)
	}
	slog.Info("run history store initialised")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS report_runs (
			id           BIGSERIAL PRIMARY KEY,
			run_id       TEXT NOT NULL UNIQUE,
			report_date  DATE NOT NULL,
			status       TEXT NOT NULL,
			rows         INTEGER DEFAULT 0,
			sends        INTEGER DEFAULT 0,
			forwards     INTEGER DEFAULT 0,
			degraded     TEXT[] DEFAULT '{}',
			report_path  TEXT DEFAULT '',
			upload_key   TEXT DEFAULT '',
			error        TEXT DEFAULT '',
			started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_report_runs_date ON report_runs(report_date);
	`)
	return err
}

// Start inserts a running record.
func (s *Store) Start(ctx context.Context, runID string, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO report_runs (run_id, report_date, status)
		VALUES ($1, $2, $3)
	`, runID, dateOnly(day), StatusRunning)
	return err
}

// Finish records the outcome of a run.
func (s *Store) Finish(ctx context.Context, r Run) error {
	degraded := r.Degraded
	if degraded == nil {
		degraded = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE report_runs
		SET status = $2, rows = $3, sends = $4, forwards = $5, degraded = $6,
		    report_path = $7, upload_key = $8, error = $9, finished_at = NOW()
		WHERE run_id = $1
	`, r.RunID, r.Status, r.Rows, r.Sends, r.Forwards, degraded, r.ReportPath, r.UploadKey, r.Error)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", r.RunID)
	}
	return nil
}

// Latest returns the most recent run for day, or nil.
func (s *Store) Latest(ctx context.Context, day time.Time) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, report_date, status, rows, sends, forwards, degraded,
		       report_path, upload_key, error, started_at, finished_at
		FROM report_runs
		WHERE report_date = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, dateOnly(day))
	return scanRun(row)
}

// List returns runs between from and to inclusive, oldest first.
func (s *Store) List(ctx context.Context, from, to time.Time) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, report_date, status, rows, sends, forwards, degraded,
		       report_path, upload_key, error, started_at, finished_at
		FROM report_runs
		WHERE report_date BETWEEN $1 AND $2
		ORDER BY report_date, started_at
	`, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// dateOnly drops the clock and zone so DATE columns match the calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.RunID, &r.ReportDate, &r.Status, &r.Rows, &r.Sends, &r.Forwards,
		&r.Degraded, &r.ReportPath, &r.UploadKey, &r.Error, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
