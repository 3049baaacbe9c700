package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
)

// progressSaveInterval is how many rows are processed between persisted
// progress updates.
const progressSaveInterval = 50

// terminalSaveTimeout bounds the write that records a job's terminal state.
// This write runs on its own deadline: the job context may already be expired
// when a timeout is the reason the job is finishing.
const terminalSaveTimeout = 10 * time.Second

// parsedRow pairs a source record with its position in the file. Rows are
// processed strictly in file order so duplicate detection and updateExisting
// semantics stay deterministic.
type parsedRow struct {
	lineNumber int
	values     map[string]string
}

// SubmitImport validates an import request, creates a pending job, and starts
// the executor in the background. The returned job is a snapshot; callers
// observe further progress by polling the job store.
//
// onUpload receives fractional upload progress (0-100) while the file content
// is consumed; it is a distinct milestone from row processing and completes
// before the first row is evaluated.
func (s *Service) SubmitImport(ctx context.Context, req ImportRequest, onUpload UploadProgressFunc) (*ImportJob, error) {
	def, ok := Lookup(req.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, req.EntityType)
	}
	if err := ValidateMappings(def, req.Mappings); err != nil {
		return nil, err
	}

	// Parse errors block submission: no job is created for an unreadable file.
	rows, err := parseImportRows(req.FileKind, req.FileData)
	if err != nil {
		return nil, err
	}

	// Upload completion is its own milestone. By the time the job exists the
	// bytes have fully arrived, so the stored percentage starts at 100; the
	// incremental 0-100 reporting happens through the callback while the
	// HTTP layer reads the request body.
	if onUpload != nil {
		onUpload(100)
	}

	job := &ImportJob{
		ID:            uuid.New(),
		Status:        StatusPending,
		EntityType:    req.EntityType,
		FileName:      req.FileName,
		TotalRows:     len(rows),
		UploadPercent: 100,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.jobs.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	snapshot := *job

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		jobCtx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		s.runImport(jobCtx, job, req, rows)
	}()

	return &snapshot, nil
}

// runImport is the import executor. It owns the job record exclusively:
// nothing else transitions status or counters once processing starts.
func (s *Service) runImport(ctx context.Context, job *ImportJob, req ImportRequest, rows []parsedRow) {
	logger := logging.WithFields(ctx, "job_id", job.ID.String(), "entity", job.EntityType)
	start := time.Now()

	def, _ := Lookup(req.EntityType)

	job.Status = StatusProcessing
	if err := s.jobs.SaveImportJob(ctx, job); err != nil {
		logger.Error("persist job start failed", "error", err)
	}

	var rowErrors []string

	for _, row := range rows {
		// A cancelled or timed-out job must still land in a terminal state;
		// skipErrors cannot keep it alive past its deadline.
		if err := ctx.Err(); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("aborted at row %d: %v", row.lineNumber, err))
			job.Errors = summarizeErrors(rowErrors, s.maxErrors)
			s.finishImport(ctx, job, StatusFailed)
			logger.Warn("import aborted",
				"processed", job.ProcessedRows,
				"total", job.TotalRows,
				"error", err,
			)
			return
		}

		record, err := buildRecord(row, req.Mappings)
		if err == nil {
			err = s.upsertRecord(ctx, def, record, req.UpdateExisting)
		}

		job.ProcessedRows++

		if err != nil {
			msg := fmt.Sprintf("row %d: %v", row.lineNumber, err)
			job.ErrorRows++
			rowErrors = append(rowErrors, msg)

			if !req.SkipErrors {
				// Halt immediately; already-committed rows stay committed.
				job.Errors = summarizeErrors(rowErrors, s.maxErrors)
				s.finishImport(ctx, job, StatusFailed)
				logger.Warn("import failed",
					"row", row.lineNumber,
					"processed", job.ProcessedRows,
					"total", job.TotalRows,
					"error", err,
				)
				return
			}
		}

		if job.ProcessedRows%progressSaveInterval == 0 {
			job.Errors = summarizeErrors(rowErrors, s.maxErrors)
			if err := s.jobs.SaveImportJob(ctx, job); err != nil {
				logger.Error("persist progress failed", "error", err)
			}
		}
	}

	job.Errors = summarizeErrors(rowErrors, s.maxErrors)
	s.finishImport(ctx, job, StatusCompleted)

	logger.Info("import completed",
		"rows", job.TotalRows,
		"error_rows", job.ErrorRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// finishImport moves a job into a terminal state and persists it once. The
// save is detached from the job context so a job whose deadline expired
// mid-run is still recorded as failed instead of staying processing forever.
func (s *Service) finishImport(ctx context.Context, job *ImportJob, status JobStatus) {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalSaveTimeout)
	defer cancel()
	if err := s.jobs.SaveImportJob(saveCtx, job); err != nil {
		logging.FromContext(ctx).Error("persist terminal job failed",
			"job_id", job.ID.String(), "error", err)
	}
}

// parseImportRows parses file content with the same readers the preview uses.
func parseImportRows(kind FileKind, data []byte) ([]parsedRow, error) {
	var records []map[string]string
	var err error

	switch kind {
	case FileKindCSV:
		_, records, err = parseDelimited(data)
	case FileKindJSON:
		_, records, err = parseStructured(data)
	default:
		return nil, fmt.Errorf("%w: cannot import file kind %q", ErrParse, kind)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrParse)
	}

	rows := make([]parsedRow, len(records))
	for i, rec := range records {
		// Line numbers are 1-indexed and account for the CSV header row.
		line := i + 1
		if kind == FileKindCSV {
			line = i + 2
		}
		rows[i] = parsedRow{lineNumber: line, values: rec}
	}
	return rows, nil
}

// buildRecord applies each mapping's transform to the source value and
// assigns it to the target field. Required mappings must end up non-empty.
func buildRecord(row parsedRow, mappings []ColumnMapping) (map[string]string, error) {
	record := make(map[string]string, len(mappings))

	for _, m := range mappings {
		if m.TargetField == "" {
			continue
		}

		value, err := ApplyTransform(m.Transform, row.values[m.SourceColumn])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", m.SourceColumn, err)
		}

		if value == "" && m.Required {
			return nil, fmt.Errorf("required field %q is empty", m.TargetField)
		}

		record[m.TargetField] = value
	}

	return record, nil
}

// upsertRecord hands a built record to the entity sink, applying the
// duplicate policy of the request.
func (s *Service) upsertRecord(ctx context.Context, def EntityDefinition, record map[string]string, updateExisting bool) error {
	naturalKey := ""
	if def.NaturalKey != "" {
		naturalKey = record[def.NaturalKey]
	}

	_, err := s.sink.Upsert(ctx, def.Type, naturalKey, record, updateExisting)
	if errors.Is(err, ErrDuplicateRecord) && def.NaturalKey != "" {
		return fmt.Errorf("%w for %s %q", ErrDuplicateRecord, def.NaturalKey, naturalKey)
	}
	return err
}

// GetImportJob returns a job snapshot for polling.
func (s *Service) GetImportJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	return s.jobs.GetImportJob(ctx, id)
}

// ListImportJobs returns all import jobs, newest first.
func (s *Service) ListImportJobs(ctx context.Context) ([]*ImportJob, error) {
	return s.jobs.ListImportJobs(ctx)
}

// DeleteImportJob removes a pending or terminal job record.
// Deleting a processing job is refused.
func (s *Service) DeleteImportJob(ctx context.Context, id uuid.UUID) error {
	return s.jobs.DeleteImportJob(ctx, id)
}
