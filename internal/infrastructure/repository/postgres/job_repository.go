package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS merge_jobs (
	id TEXT PRIMARY KEY,
	files JSONB NOT NULL DEFAULT '[]'::jsonb,
	reports JSONB NOT NULL DEFAULT '[]'::jsonb,
	workbook_path TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_jobs_status ON merge_jobs(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.MergeJob) error {
	files, err := json.Marshal(job.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	const query = `
INSERT INTO merge_jobs (id, files, status, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, files, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert merge job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.MergeJob, error) {
	const query = `
SELECT id, files, reports, COALESCE(workbook_path, ''), status, COALESCE(error_message, ''), created_at, updated_at
FROM merge_jobs
WHERE id = $1
`
	row := r.db.QueryRowContext(ctx, query, id)

	var (
		job     domain.MergeJob
		files   []byte
		reports []byte
		status  string
	)
	err := row.Scan(&job.ID, &files, &reports, &job.WorkbookPath, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get merge job", err)
	}
	if err != nil {
		return nil, fmt.Errorf("scan merge job: %w", err)
	}

	if err := json.Unmarshal(files, &job.Files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	if len(reports) > 0 {
		if err := json.Unmarshal(reports, &job.Reports); err != nil {
			return nil, fmt.Errorf("unmarshal reports: %w", err)
		}
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	const query = `
UPDATE merge_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, query, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update merge job status: %w", err)
	}
	return requireRowAffected(res, "update merge job status")
}

func (r *JobRepository) SaveResults(ctx context.Context, id string, workbookPath string, reports []domain.FileReport) error {
	payload, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}

	const query = `
UPDATE merge_jobs
SET reports = $2, workbook_path = $3, updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, query, id, payload, workbookPath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save merge job results: %w", err)
	}
	return requireRowAffected(res, "save merge job results")
}

func requireRowAffected(res sql.Result, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, operation, sql.ErrNoRows)
	}
	return nil
}
