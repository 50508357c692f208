package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lucasnoah/testbridge/internal/result"
)

// RunRecord is one row of test_runs.
type RunRecord struct {
	ID        string
	Framework string
	WorkDir   string
	Success   bool
	ExitCode  int
	TimedOut  bool
	Error     string
	StartedAt time.Time
	Duration  time.Duration
	Summary   result.Summary
}

// RecordRun stores a run and its results in one transaction. Recording the
// same run ID again replaces the earlier rows.
func (d *DB) RecordRun(ctx context.Context, run RunRecord, records []result.Record) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM test_runs WHERE id = $1", run.ID); err != nil {
		return fmt.Errorf("clear run %s: %w", run.ID, err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO test_runs (id, framework, workdir, success, exit_code, timed_out, error,
                       started_at, duration_ms, total, passed, failed, skipped)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.Framework, run.WorkDir, run.Success, run.ExitCode, run.TimedOut, run.Error,
		run.StartedAt, run.Duration.Milliseconds(),
		run.Summary.Total, run.Summary.Passed, run.Summary.Failed, run.Summary.Skipped,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(records) > 0 {
		columns := []string{"run_id", "position", "category", "status", "name", "message", "time_seconds", "extra_text"}
		rows := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{run.ID, i, r.Category.String(), r.Status, r.Name, r.Message, r.Time, r.ExtraText}, nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"test_results"}, columns, rows); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, framework, workdir, success, exit_code, timed_out, error,
       started_at, duration_ms, total, passed, failed, skipped`

func scanRun(row pgx.Row) (RunRecord, error) {
	var r RunRecord
	var durationMS int64
	err := row.Scan(&r.ID, &r.Framework, &r.WorkDir, &r.Success, &r.ExitCode, &r.TimedOut, &r.Error,
		&r.StartedAt, &durationMS,
		&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.Skipped)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, err
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM test_runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (d *DB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := d.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM test_runs WHERE id = $1", id)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

// GetResults returns a run's results in their original order.
func (d *DB) GetResults(ctx context.Context, runID string) ([]result.Record, error) {
	rows, err := d.pool.Query(ctx, `
SELECT category, status, name, message, time_seconds, extra_text
FROM test_results WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var records []result.Record
	for rows.Next() {
		var r result.Record
		var category string
		if err := rows.Scan(&category, &r.Status, &r.Name, &r.Message, &r.Time, &r.ExtraText); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Category, err = result.ParseCategory(category); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// FlakyTest is a test whose category differed across recent runs.
type FlakyTest struct {
	Name     string
	Runs     int
	Failures int
}

// FlakyTests returns tests that both passed and failed within the last
// window runs of a framework, most failures first. A window of zero or less
// covers every run.
func (d *DB) FlakyTests(ctx context.Context, framework string, window int) ([]FlakyTest, error) {
	var limit any
	if window > 0 {
		limit = window
	}
	rows, err := d.pool.Query(ctx, `
WITH recent AS (
    SELECT id FROM test_runs WHERE framework = $1 ORDER BY started_at DESC LIMIT $2
)
SELECT r.name,
       COUNT(*) AS runs,
       COUNT(*) FILTER (WHERE r.category = 'fail') AS failures
FROM test_results r JOIN recent ON r.run_id = recent.id
GROUP BY r.name
HAVING COUNT(*) FILTER (WHERE r.category = 'fail') > 0
   AND COUNT(*) FILTER (WHERE r.category = 'ok') > 0
ORDER BY failures DESC, r.name`, framework, limit)
	if err != nil {
		return nil, fmt.Errorf("query flaky tests: %w", err)
	}
	defer rows.Close()

	var tests []FlakyTest
	for rows.Next() {
		var ft FlakyTest
		if err := rows.Scan(&ft.Name, &ft.Runs, &ft.Failures); err != nil {
			return nil, fmt.Errorf("scan flaky test: %w", err)
		}
		tests = append(tests, ft)
	}
	return tests, rows.Err()
}
