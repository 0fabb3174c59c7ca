package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNoLedger is returned when the export_runs table has not been created.
var ErrNoLedger = errors.New("run ledger table does not exist")

// ExportRun is one row of export_runs. Steps holds the JSON-encoded step
// results.
type ExportRun struct {
	ID             uuid.UUID
	StartedAt      pgtype.Timestamptz
	FinishedAt     pgtype.Timestamptz
	ExportFilename string
	ArtifactPath   pgtype.Text
	Status         string
	ExitCode       int32
	Steps          []byte
}

const upsertRun = `
INSERT INTO export_runs (id, started_at, finished_at, export_filename, artifact_path, status, exit_code, steps)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    finished_at     = EXCLUDED.finished_at,
    export_filename = EXCLUDED.export_filename,
    artifact_path   = EXCLUDED.artifact_path,
    status          = EXCLUDED.status,
    exit_code       = EXCLUDED.exit_code,
    steps           = EXCLUDED.steps`

// UpsertRun inserts the run, or overwrites it when the id was recorded
// before.
func (db *DB) UpsertRun(ctx context.Context, run ExportRun) error {
	steps := run.Steps
	if steps == nil {
		steps = []byte("[]")
	}
	_, err := db.pool.Exec(ctx, upsertRun,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.ExportFilename,
		run.ArtifactPath,
		run.Status,
		run.ExitCode,
		string(steps),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert export run %s: %w", run.ID, classify(err))
	}
	return nil
}

const listRecentRuns = `
SELECT id, started_at, finished_at, export_filename, artifact_path, status, exit_code, steps
FROM export_runs
ORDER BY started_at DESC
LIMIT $1`

// ListRecentRuns returns up to limit runs, newest first.
func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]ExportRun, error) {
	rows, err := db.pool.Query(ctx, listRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list export runs: %w", classify(err))
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ExportRun, error) {
		var r ExportRun
		err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.ExportFilename, &r.ArtifactPath, &r.Status, &r.ExitCode, &r.Steps)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan export runs: %w", classify(err))
	}
	return runs, nil
}

// classify maps well-known PostgreSQL errors onto package sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
		return fmt.Errorf("%w: %s", ErrNoLedger, pgErr.Message)
	}
	return err
}
