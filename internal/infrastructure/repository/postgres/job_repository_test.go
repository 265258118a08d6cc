package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &JobRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, files, reports").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDUnmarshalsFilesAndReports(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "files", "reports", "workbook_path", "status", "error_message", "created_at", "updated_at"}).
		AddRow(
			"job-1",
			[]byte(`[{"name":"a.csv","storage_key":"jobs/job-1/input/00_a.csv","size_bytes":12}]`),
			[]byte(`[{"filename":"a.csv","sheet_name":"a","encoding":"utf-8","delimiter":",","rows_kept":3,"status":"ok"}]`),
			"jobs/job-1/merged_output.xlsx",
			"ready",
			"",
			now,
			now,
		)
	mock.ExpectQuery("SELECT id, files, reports").WithArgs("job-1").WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.StatusReady {
		t.Fatalf("status = %s", job.Status)
	}
	if len(job.Files) != 1 || job.Files[0].StorageKey != "jobs/job-1/input/00_a.csv" {
		t.Fatalf("files = %+v", job.Files)
	}
	if len(job.Reports) != 1 || job.Reports[0].RowsKept != 3 {
		t.Fatalf("reports = %+v", job.Reports)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE merge_jobs").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultsReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE merge_jobs").
		WithArgs("missing", sqlmock.AnyArg(), "jobs/missing/merged_output.xlsx", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveResults(context.Background(), "missing", "jobs/missing/merged_output.xlsx", []domain.FileReport{
		{Filename: "a.csv", Status: domain.FileStatusOK, RowsKept: 1},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
