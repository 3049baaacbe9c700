// Package exchange error mapping.
//
// # Error Codes Reference
//
// User-facing errors carry a code that operators can quote to support staff.
// Codes are grouped by category:
//
//	PRS001-PRS099  Parse errors (file content could not be interpreted)
//	MAP001-MAP099  Mapping validation errors (blocking, pre-submission)
//	ROW001-ROW099  Row-level import errors
//	UPL001-UPL099  Upload and submission errors
//	EXT001-EXT099  Extraction-service errors (recoverable)
//	PRE001-PRE099  Precondition errors (should not be reachable via the UI)
//	JOB001-JOB099  Job lookup and lifecycle errors
//	DB001-DB099    Database errors
//	ERR000         Fallback when no pattern matches
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrParse indicates file content could not be interpreted into
	// columns and rows. Recoverable; no job is created.
	ErrParse = errors.New("could not parse file")

	// ErrPreviewUnsupported is returned when the spreadsheet file kind is
	// given to the preview parser, which only handles text formats.
	ErrPreviewUnsupported = errors.New("format not supported by preview")

	// ErrNoMappedColumns blocks a submission whose mapping assigns no
	// target field to any column.
	ErrNoMappedColumns = errors.New("no columns mapped")

	// ErrRequiredUnmapped blocks a submission where a required mapping has
	// an empty target field.
	ErrRequiredUnmapped = errors.New("required field unmapped")

	// ErrUnknownEntity is returned when a request names an entity type that
	// is not registered.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrDuplicateRecord is returned by an entity sink when the natural key
	// matches an existing record and updates were not requested.
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrJobNotFound is returned for an unknown job id. Pollers must
	// tolerate it immediately after submission.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned when deleting a job that is still processing.
	ErrJobRunning = errors.New("job is still processing")

	// ErrJobNotReady is the precondition failure for downloading an export
	// that has not completed.
	ErrJobNotReady = errors.New("export job not completed")

	// ErrExtraction wraps failures of the external extraction service.
	// The operator may retry without re-uploading the document.
	ErrExtraction = errors.New("extraction failed")

	// ErrInvalidState is returned for a workflow transition the current
	// draft state does not permit.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrDraftNotFound is returned for an unknown agreement draft id.
	ErrDraftNotFound = errors.New("draft not found")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Parse errors
	{
		pattern: "format not supported by preview",
		msg: UserMessage{
			Message: "This file format cannot be previewed",
			Action:  "Upload a CSV or JSON file, or import without preview",
			Code:    "PRS002",
		},
	},
	{
		pattern: "could not parse",
		msg: UserMessage{
			Message: "The file content could not be read",
			Action:  "Check the file is valid CSV or JSON and try again",
			Code:    "PRS001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data rows",
			Code:    "PRS003",
		},
	},

	// Mapping validation
	{
		pattern: "no columns mapped",
		msg: UserMessage{
			Message: "No columns are mapped to a field",
			Action:  "Map at least one column before importing",
			Code:    "MAP001",
		},
	},
	{
		pattern: "required field unmapped",
		msg: UserMessage{
			Message: "A required field has no column mapped to it",
			Action:  "Map the required field or mark it as not required",
			Code:    "MAP002",
		},
	},
	{
		pattern: "mapped more than once",
		msg: UserMessage{
			Message: "Two columns are mapped to the same field",
			Action:  "Each field may receive at most one column",
			Code:    "MAP003",
		},
	},
	{
		pattern: "is not a field of",
		msg: UserMessage{
			Message: "A column is mapped to a field this record type does not have",
			Action:  "Re-run the preview for the selected record type",
			Code:    "MAP004",
		},
	},

	// Row-level import errors
	{
		pattern: "duplicate record",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Enable \"update existing\" to overwrite matching records",
			Code:    "ROW001",
		},
	},
	{
		pattern: "unknown transform",
		msg: UserMessage{
			Message: "A column uses a transform this system does not know",
			Action:  "Remove or correct the transform token",
			Code:    "ROW002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "ROW003",
		},
	},

	// Upload errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "UPL001",
		},
	},
	{
		pattern: "unknown entity",
		msg: UserMessage{
			Message: "The selected record type is not configured",
			Action:  "Choose a record type from the list",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL004",
		},
	},

	// Extraction errors
	{
		pattern: "extraction failed",
		msg: UserMessage{
			Message: "Pay rates could not be extracted from the document",
			Action:  "Retry extraction; the document does not need re-uploading",
			Code:    "EXT001",
		},
	},

	// Precondition errors
	{
		pattern: "export job not completed",
		msg: UserMessage{
			Message: "The export has not finished yet",
			Action:  "Wait for the job to complete before downloading",
			Code:    "PRE001",
		},
	},
	{
		pattern: "invalid state for operation",
		msg: UserMessage{
			Message: "This step is not available right now",
			Action:  "Complete the previous step first",
			Code:    "PRE002",
		},
	},

	// Job lifecycle
	{
		pattern: "job is still processing",
		msg: UserMessage{
			Message: "The job is still running and cannot be deleted",
			Action:  "Wait for the job to finish",
			Code:    "JOB002",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "The job could not be found",
			Action:  "It may still be starting; refresh and try again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "draft not found",
		msg: UserMessage{
			Message: "The agreement draft could not be found",
			Action:  "It may have expired; start a new agreement",
			Code:    "JOB003",
		},
	},

	// Database errors
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
}

// defaultUserMessage is the fallback when no pattern matches.
var defaultUserMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-friendly message.
// The original error should still be logged server-side.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultUserMessage
}

// errFileTooLarge builds the upload-size error surfaced to operators.
func errFileTooLarge(max int64) error {
	return fmt.Errorf("file too large: exceeds %dMB limit", max/(1024*1024))
}

// summarizeErrors bounds an error list for display: at most max entries, with
// an explicit trailing count of whatever was cut off.
func summarizeErrors(errs []string, max int) []string {
	if len(errs) <= max {
		return errs
	}
	out := make([]string, max+1)
	copy(out, errs[:max])
	out[max] = fmt.Sprintf("... and %d more errors", len(errs)-max)
	return out
}
