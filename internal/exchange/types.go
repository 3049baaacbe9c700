// Package exchange provides the business logic for the bulk data exchange
// pipeline: file preview, column-mapping inference, import/export jobs, and
// the enterprise agreement rate-extraction workflow.
// This package has no UI dependencies and can be used by any frontend.
package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// FileKind identifies how an uploaded file should be interpreted.
type FileKind string

const (
	FileKindCSV  FileKind = "csv"  // delimited text, first line is the header
	FileKindJSON FileKind = "json" // array of uniform objects
	FileKindXLSX FileKind = "xlsx" // spreadsheet; not supported by the preview parser
)

// FieldSpec describes a single importable/exportable field of an entity type.
type FieldSpec struct {
	Label       string `json:"label"`       // Display name shown to the operator
	TargetField string `json:"targetField"` // Key the value is stored under
	Required    bool   `json:"required"`    // Commonly required for a usable record
}

// EntityDefinition is the static catalog entry for one entity type.
type EntityDefinition struct {
	Type       string      // Unique identifier: "apprentices"
	Label      string      // Display name: "Apprentices"
	Fields     []FieldSpec // Importable/exportable fields, in registry order
	NaturalKey string      // Target field used for duplicate detection, "" if none
}

// ColumnMapping assigns one source column of an uploaded file to a target
// entity field. An empty TargetField means the column is skipped.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  string `json:"targetField"`
	Required     bool   `json:"required"`
	Transform    string `json:"transform,omitempty"`
}

// ImportPreview is the transient result of a single file read: the detected
// columns, a small sample of rows, and a first-pass mapping proposal.
type ImportPreview struct {
	Columns    []string            `json:"columns"`
	SampleRows []map[string]string `json:"sampleRows"`
	Mappings   []ColumnMapping     `json:"mappings"`
}

// JobStatus is the lifecycle state of an import or export job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job in this status will never be mutated again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImportJob is the durable record of one bulk import.
// Owned by the job store; mutated only by the executor.
type ImportJob struct {
	ID            uuid.UUID  `json:"id"`
	Status        JobStatus  `json:"status"`
	EntityType    string     `json:"entityType"`
	FileName      string     `json:"fileName"`
	TotalRows     int        `json:"totalRows"`
	ProcessedRows int        `json:"processedRows"`
	ErrorRows     int        `json:"errorRows"`
	Errors        []string   `json:"errors"`
	UploadPercent int        `json:"uploadPercent"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ExportJob is the durable record of one bulk export.
type ExportJob struct {
	ID          uuid.UUID  `json:"id"`
	Status      JobStatus  `json:"status"`
	EntityType  string     `json:"entityType"`
	FileType    FileKind   `json:"fileType"`
	FileName    string     `json:"fileName"`
	TotalRows   int        `json:"totalRows"`
	Filter      string     `json:"filter,omitempty"`
	Columns     []string   `json:"columns,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
}

// ImportRequest carries everything needed to submit an import job.
type ImportRequest struct {
	EntityType     string
	FileName       string
	FileKind       FileKind
	FileData       []byte
	Mappings       []ColumnMapping
	UpdateExisting bool
	SkipErrors     bool
}

// ExportRequest carries everything needed to submit an export job.
type ExportRequest struct {
	EntityType string
	FileType   FileKind
	Columns    []string // empty selects all registered fields
	Filter     string   // comma-separated key=value pairs, "" for no filter
}

// UploadProgressFunc receives fractional upload progress (0-100) while file
// content is being received. Distinct from row-processing progress.
type UploadProgressFunc func(percent int)

// UpsertOutcome reports what an entity sink did with a record.
type UpsertOutcome int

const (
	OutcomeCreated UpsertOutcome = iota
	OutcomeUpdated
)

// EntitySink is the upsert target behind each entity type. The concrete
// persistence engine is out of scope for the pipeline; this is the narrow
// surface it relies on.
type EntitySink interface {
	// Upsert stores a record. A record whose natural key matches an existing
	// one is updated when updateExisting is true, and rejected with
	// ErrDuplicateRecord when false. Records without a natural key are always
	// created.
	Upsert(ctx context.Context, entityType, naturalKey string, fields map[string]string, updateExisting bool) (UpsertOutcome, error)

	// Query returns records of an entity type matching every key=value pair
	// of the filter. A nil or empty filter matches all records.
	Query(ctx context.Context, entityType string, filter map[string]string) ([]map[string]string, error)
}

// JobStore is the durable record of all import and export jobs.
// Only the executor transitions a job's status and counters; readers poll.
type JobStore interface {
	CreateImportJob(ctx context.Context, job *ImportJob) error
	SaveImportJob(ctx context.Context, job *ImportJob) error
	GetImportJob(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	ListImportJobs(ctx context.Context) ([]*ImportJob, error)
	DeleteImportJob(ctx context.Context, id uuid.UUID) error

	CreateExportJob(ctx context.Context, job *ExportJob) error
	SaveExportJob(ctx context.Context, job *ExportJob) error
	GetExportJob(ctx context.Context, id uuid.UUID) (*ExportJob, error)
	ListExportJobs(ctx context.Context) ([]*ExportJob, error)
	DeleteExportJob(ctx context.Context, id uuid.UUID) error
}

// EnterpriseAgreement is the parent record produced by the rate-extraction
// workflow. Its pay rates are meaningless without it and are only ever
// persisted together with it.
type EnterpriseAgreement struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Reference     string     `json:"reference,omitempty"`
	EmployerName  string     `json:"employerName,omitempty"`
	EffectiveFrom *time.Time `json:"effectiveFrom,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	FileName      string     `json:"fileName,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ExtractedPayRate is one candidate wage-table row produced by the extraction
// service and reviewed by the operator before saving.
type ExtractedPayRate struct {
	Classification string `json:"classification"`
	Rate           string `json:"rate"`
	EffectiveDate  string `json:"effective_date"`
	Notes          string `json:"notes,omitempty"`
}

// AgreementStore persists an agreement together with its full rate set in a
// single transaction, and reads them back.
type AgreementStore interface {
	SaveAgreement(ctx context.Context, agreement *EnterpriseAgreement, rates []ExtractedPayRate) error
	GetAgreement(ctx context.Context, id uuid.UUID) (*EnterpriseAgreement, []ExtractedPayRate, error)
}

// RateExtractor converts an uploaded wage agreement document into candidate
// pay rate rows. Best-effort and fallible; results are always reviewed by the
// operator before persistence.
type RateExtractor interface {
	ExtractRates(ctx context.Context, fileName string, document []byte) ([]ExtractedPayRate, error)
}
