package exchange

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
)

// SubmitExport validates an export request, creates a pending job, and starts
// the executor in the background.
func (s *Service) SubmitExport(ctx context.Context, req ExportRequest) (*ExportJob, error) {
	def, ok := Lookup(req.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, req.EntityType)
	}

	switch req.FileType {
	case FileKindCSV, FileKindJSON, FileKindXLSX:
	default:
		return nil, fmt.Errorf("unsupported export file type %q", req.FileType)
	}

	// Column selection defaults to every registered field.
	columns := req.Columns
	if len(columns) == 0 {
		columns = def.AllTargetFields()
	}
	for _, col := range columns {
		if _, ok := def.FieldByTarget(col); !ok {
			return nil, fmt.Errorf("unknown column %q for entity %s", col, req.EntityType)
		}
	}

	// Filter syntax is checked on submission; evaluation happens in the
	// executor.
	filter, err := ParseFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	job := &ExportJob{
		ID:         uuid.New(),
		Status:     StatusPending,
		EntityType: req.EntityType,
		FileType:   req.FileType,
		FileName:   fmt.Sprintf("%s_%s.%s", req.EntityType, time.Now().UTC().Format("20060102_150405"), req.FileType),
		Filter:     req.Filter,
		Columns:    columns,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.jobs.CreateExportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	snapshot := *job

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		jobCtx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		s.runExport(jobCtx, job, filter)
	}()

	return &snapshot, nil
}

// runExport is the export executor: query, serialize, write, complete.
func (s *Service) runExport(ctx context.Context, job *ExportJob, filter map[string]string) {
	logger := logging.WithFields(ctx, "job_id", job.ID.String(), "entity", job.EntityType)
	start := time.Now()

	job.Status = StatusProcessing
	if err := s.jobs.SaveExportJob(ctx, job); err != nil {
		logger.Error("persist job start failed", "error", err)
	}

	// Terminal saves are detached from the job context: an expired deadline is
	// itself a failure this write must be able to record.
	saveTerminal := func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalSaveTimeout)
		defer cancel()
		if err := s.jobs.SaveExportJob(saveCtx, job); err != nil {
			logger.Error("persist terminal job failed", "error", err)
		}
	}

	fail := func(err error) {
		now := time.Now().UTC()
		job.Status = StatusFailed
		job.CompletedAt = &now
		saveTerminal()
		logger.Warn("export failed", "error", err)
	}

	records, err := s.sink.Query(ctx, job.EntityType, filter)
	if err != nil {
		fail(fmt.Errorf("query records: %w", err))
		return
	}

	content, err := serializeRecords(job.FileType, job.Columns, records)
	if err != nil {
		fail(fmt.Errorf("serialize: %w", err))
		return
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		fail(fmt.Errorf("create export dir: %w", err))
		return
	}
	path := filepath.Join(s.exportDir, job.ID.String()+"_"+job.FileName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		fail(fmt.Errorf("write export file: %w", err))
		return
	}

	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.TotalRows = len(records)
	job.CompletedAt = &now
	job.DownloadURL = "/api/export/" + job.ID.String() + "/download"
	saveTerminal()

	logger.Info("export completed",
		"rows", job.TotalRows,
		"file_type", string(job.FileType),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ParseFilter parses a comma-separated key=value filter expression.
// An empty expression is no filter. Values may contain '='; keys may not be
// empty.
func ParseFilter(expr string) (map[string]string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	filter := make(map[string]string)
	for _, pair := range strings.Split(expr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid filter pair %q (expected key=value)", pair)
		}
		filter[key] = strings.TrimSpace(value)
	}

	if len(filter) == 0 {
		return nil, fmt.Errorf("invalid filter %q", expr)
	}
	return filter, nil
}

// serializeRecords renders the selected columns of the records in the
// requested file type.
func serializeRecords(kind FileKind, columns []string, records []map[string]string) ([]byte, error) {
	switch kind {
	case FileKindCSV:
		return serializeCSV(columns, records)
	case FileKindJSON:
		return serializeJSON(columns, records)
	case FileKindXLSX:
		return serializeXLSX(columns, records)
	default:
		return nil, fmt.Errorf("unsupported export file type %q", kind)
	}
}

func serializeCSV(columns []string, records []map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func serializeJSON(columns []string, records []map[string]string) ([]byte, error) {
	out := make([]map[string]string, len(records))
	for i, rec := range records {
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			row[col] = rec[col]
		}
		out[i] = row
	}
	return json.MarshalIndent(out, "", "  ")
}

func serializeXLSX(columns []string, records []map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, rec := range records {
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			row[j] = rec[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for a completed export's download.
func ContentType(kind FileKind) string {
	switch kind {
	case FileKindCSV:
		return "text/csv"
	case FileKindJSON:
		return "application/json"
	case FileKindXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// OpenDownload returns the content of a completed export job. Requesting a
// download before completion is a precondition error, not a retryable one;
// repeated downloads of a completed job return identical content.
func (s *Service) OpenDownload(ctx context.Context, id uuid.UUID) (*ExportJob, io.ReadCloser, error) {
	job, err := s.jobs.GetExportJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted {
		return nil, nil, fmt.Errorf("%w: job %s is %s", ErrJobNotReady, id, job.Status)
	}

	path := filepath.Join(s.exportDir, job.ID.String()+"_"+job.FileName)
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open export file: %w", err)
	}
	return job, file, nil
}

// GetExportJob returns a job snapshot for polling.
func (s *Service) GetExportJob(ctx context.Context, id uuid.UUID) (*ExportJob, error) {
	return s.jobs.GetExportJob(ctx, id)
}

// ListExportJobs returns all export jobs, newest first.
func (s *Service) ListExportJobs(ctx context.Context) ([]*ExportJob, error) {
	return s.jobs.ListExportJobs(ctx)
}

// DeleteExportJob removes a pending or terminal job record and its file.
func (s *Service) DeleteExportJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetExportJob(ctx, id)
	if err != nil {
		return err
	}
	if err := s.jobs.DeleteExportJob(ctx, id); err != nil {
		return err
	}

	// Best effort: the job record is authoritative, the file is not.
	path := filepath.Join(s.exportDir, job.ID.String()+"_"+job.FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.FromContext(ctx).Warn("remove export file failed", "path", path, "error", err)
	}
	return nil
}
