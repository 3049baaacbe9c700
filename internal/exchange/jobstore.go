package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PGJobStore is the PostgreSQL implementation of JobStore.
//
// Status and counters are only written by the executors; every update is
// guarded so a job that reached a terminal state is never mutated again,
// even by a late write.
type PGJobStore struct {
	db DBTX
}

// NewPGJobStore creates a job store backed by the given pool or transaction.
func NewPGJobStore(db DBTX) *PGJobStore {
	return &PGJobStore{db: db}
}

const createImportJobSQL = `
INSERT INTO import_jobs (id, status, entity_type, file_name, total_rows, processed_rows, error_rows, errors, upload_percent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// CreateImportJob inserts a new import job record.
func (s *PGJobStore) CreateImportJob(ctx context.Context, job *ImportJob) error {
	_, err := s.db.Exec(ctx, createImportJobSQL,
		job.ID, job.Status, job.EntityType, job.FileName,
		job.TotalRows, job.ProcessedRows, job.ErrorRows, job.Errors,
		job.UploadPercent, job.CreatedAt,
	)
	return err
}

const saveImportJobSQL = `
UPDATE import_jobs
SET status = $2, total_rows = $3, processed_rows = $4, error_rows = $5,
    errors = $6, upload_percent = $7, completed_at = $8
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

// SaveImportJob persists the executor's view of a job. Writes against a job
// already in a terminal state are silently dropped.
func (s *PGJobStore) SaveImportJob(ctx context.Context, job *ImportJob) error {
	_, err := s.db.Exec(ctx, saveImportJobSQL,
		job.ID, job.Status, job.TotalRows, job.ProcessedRows, job.ErrorRows,
		job.Errors, job.UploadPercent, job.CompletedAt,
	)
	return err
}

const importJobColumns = `id, status, entity_type, file_name, total_rows, processed_rows, error_rows, errors, upload_percent, created_at, completed_at`

// GetImportJob fetches one import job by id.
func (s *PGJobStore) GetImportJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, id)
	return scanImportJob(row)
}

// ListImportJobs returns all import jobs, newest first.
func (s *PGJobStore) ListImportJobs(ctx context.Context) ([]*ImportJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+importJobColumns+` FROM import_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteImportJob removes a pending or terminal import job.
func (s *PGJobStore) DeleteImportJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM import_jobs WHERE id = $1 AND status <> 'processing'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetImportJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	return nil
}

func scanImportJob(row pgx.Row) (*ImportJob, error) {
	var job ImportJob
	var completedAt *time.Time

	err := row.Scan(&job.ID, &job.Status, &job.EntityType, &job.FileName,
		&job.TotalRows, &job.ProcessedRows, &job.ErrorRows, &job.Errors,
		&job.UploadPercent, &job.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job.CompletedAt = completedAt
	return &job, nil
}

const createExportJobSQL = `
INSERT INTO export_jobs (id, status, entity_type, file_type, file_name, total_rows, filter, columns, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// CreateExportJob inserts a new export job record.
func (s *PGJobStore) CreateExportJob(ctx context.Context, job *ExportJob) error {
	_, err := s.db.Exec(ctx, createExportJobSQL,
		job.ID, job.Status, job.EntityType, job.FileType, job.FileName,
		job.TotalRows, job.Filter, job.Columns, job.CreatedAt,
	)
	return err
}

const saveExportJobSQL = `
UPDATE export_jobs
SET status = $2, total_rows = $3, completed_at = $4, download_url = $5
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

// SaveExportJob persists the executor's view of a job, with the same
// terminal-state guard as imports.
func (s *PGJobStore) SaveExportJob(ctx context.Context, job *ExportJob) error {
	var url *string
	if job.DownloadURL != "" {
		url = &job.DownloadURL
	}
	_, err := s.db.Exec(ctx, saveExportJobSQL,
		job.ID, job.Status, job.TotalRows, job.CompletedAt, url,
	)
	return err
}

const exportJobColumns = `id, status, entity_type, file_type, file_name, total_rows, filter, columns, created_at, completed_at, download_url`

// GetExportJob fetches one export job by id.
func (s *PGJobStore) GetExportJob(ctx context.Context, id uuid.UUID) (*ExportJob, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+exportJobColumns+` FROM export_jobs WHERE id = $1`, id)
	return scanExportJob(row)
}

// ListExportJobs returns all export jobs, newest first.
func (s *PGJobStore) ListExportJobs(ctx context.Context) ([]*ExportJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+exportJobColumns+` FROM export_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteExportJob removes a pending or terminal export job.
func (s *PGJobStore) DeleteExportJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM export_jobs WHERE id = $1 AND status <> 'processing'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetExportJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	return nil
}

func scanExportJob(row pgx.Row) (*ExportJob, error) {
	var job ExportJob
	var completedAt *time.Time
	var filter, downloadURL *string

	err := row.Scan(&job.ID, &job.Status, &job.EntityType, &job.FileType,
		&job.FileName, &job.TotalRows, &filter, &job.Columns,
		&job.CreatedAt, &completedAt, &downloadURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job.CompletedAt = completedAt
	if filter != nil {
		job.Filter = *filter
	}
	if downloadURL != nil {
		job.DownloadURL = *downloadURL
	}
	return &job, nil
}
