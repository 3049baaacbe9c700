package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newImportService(store *memJobStore, sink *memSink, opts Options) *Service {
	return NewService(store, sink, newMemAgreementStore(), nil, opts)
}

var contactMappings = []ColumnMapping{
	{SourceColumn: "Email", TargetField: "email", Required: true},
	{SourceColumn: "First Name", TargetField: "firstName", Required: true},
	{SourceColumn: "Last Name", TargetField: "lastName", Required: true},
}

func contactCSV(rows ...string) []byte {
	return []byte("Email,First Name,Last Name\n" + strings.Join(rows, "\n") + "\n")
}

func TestSubmitImport_Success(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{})

	var uploadDone bool
	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileName:   "contacts.csv",
		FileKind:   FileKindCSV,
		FileData:   contactCSV("a@example.com,Ada,Lovelace", "b@example.com,Brian,Kernighan"),
		Mappings:   contactMappings,
	}, func(p int) {
		if p == 100 {
			uploadDone = true
		}
	})
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}
	if !uploadDone {
		t.Error("upload callback never reached 100")
	}
	if job.Status != StatusPending {
		t.Errorf("submitted status = %q, want pending", job.Status)
	}
	if job.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", job.TotalRows)
	}
	if job.UploadPercent != 100 {
		t.Errorf("UploadPercent = %d, want 100", job.UploadPercent)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %q, want completed (errors: %v)", final.Status, final.Errors)
	}
	if final.ProcessedRows != 2 || final.ErrorRows != 0 {
		t.Errorf("processed/errors = %d/%d, want 2/0", final.ProcessedRows, final.ErrorRows)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if sink.count() != 2 {
		t.Errorf("sink records = %d, want 2", sink.count())
	}
}

func TestSubmitImport_SkipErrorsCollectsAndCompletes(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{})

	// Rows 3 and 5 are missing a required value.
	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData: contactCSV(
			"a@example.com,Ada,Lovelace",
			",Missing,Email",
			"c@example.com,Carol,Shaw",
			"d@example.com,,NoFirst",
			"e@example.com,Eve,Online",
		),
		Mappings:   contactMappings,
		SkipErrors: true,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %q, want completed", final.Status)
	}
	if final.ProcessedRows != 5 {
		t.Errorf("ProcessedRows = %d, want 5 (all rows visited)", final.ProcessedRows)
	}
	if final.ErrorRows != 2 {
		t.Errorf("ErrorRows = %d, want 2", final.ErrorRows)
	}
	if len(final.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", final.Errors)
	}
	// Error messages carry file line numbers (header is line 1).
	if !strings.Contains(final.Errors[0], "row 3") {
		t.Errorf("Errors[0] = %q, want row 3", final.Errors[0])
	}
	if sink.count() != 3 {
		t.Errorf("sink records = %d, want 3 (bad rows skipped)", sink.count())
	}
}

func TestSubmitImport_FailFastHaltsOnFirstError(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{})

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData: contactCSV(
			"a@example.com,Ada,Lovelace",
			",Missing,Email",
			"c@example.com,Carol,Shaw",
		),
		Mappings: contactMappings,
		// SkipErrors false: halt on the first bad row.
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusFailed {
		t.Fatalf("final status = %q, want failed", final.Status)
	}
	if final.ProcessedRows != 2 {
		t.Errorf("ProcessedRows = %d, want 2 (halted at bad row)", final.ProcessedRows)
	}
	// The row committed before the failure stays committed.
	if sink.count() != 1 {
		t.Errorf("sink records = %d, want 1", sink.count())
	}
}

func TestSubmitImport_DuplicatePolicy(t *testing.T) {
	t.Run("duplicates are row errors by default", func(t *testing.T) {
		store := newMemJobStore()
		sink := &memSink{}
		svc := newImportService(store, sink, Options{})

		job, err := svc.SubmitImport(context.Background(), ImportRequest{
			EntityType: "contacts",
			FileKind:   FileKindCSV,
			FileData: contactCSV(
				"a@example.com,Ada,Lovelace",
				"a@example.com,Ada,Again",
			),
			Mappings:   contactMappings,
			SkipErrors: true,
		}, nil)
		if err != nil {
			t.Fatalf("SubmitImport() error = %v", err)
		}

		final := waitForImportJob(t, store, job.ID)
		if final.Status != StatusCompleted || final.ErrorRows != 1 {
			t.Fatalf("status/errorRows = %q/%d, want completed/1", final.Status, final.ErrorRows)
		}
		if !strings.Contains(final.Errors[0], "duplicate record") {
			t.Errorf("Errors[0] = %q, want duplicate record", final.Errors[0])
		}
		if sink.count() != 1 {
			t.Errorf("sink records = %d, want 1", sink.count())
		}
	})

	t.Run("updateExisting overwrites matches", func(t *testing.T) {
		store := newMemJobStore()
		sink := &memSink{}
		svc := newImportService(store, sink, Options{})

		job, err := svc.SubmitImport(context.Background(), ImportRequest{
			EntityType: "contacts",
			FileKind:   FileKindCSV,
			FileData: contactCSV(
				"a@example.com,Ada,Lovelace",
				"a@example.com,Ada,Updated",
			),
			Mappings:       contactMappings,
			UpdateExisting: true,
			SkipErrors:     true,
		}, nil)
		if err != nil {
			t.Fatalf("SubmitImport() error = %v", err)
		}

		final := waitForImportJob(t, store, job.ID)
		if final.ErrorRows != 0 {
			t.Errorf("ErrorRows = %d, want 0", final.ErrorRows)
		}
		if sink.count() != 1 {
			t.Fatalf("sink records = %d, want 1", sink.count())
		}
		records, _ := sink.Query(context.Background(), "contacts", nil)
		if records[0]["lastName"] != "Updated" {
			t.Errorf("lastName = %q, want Updated", records[0]["lastName"])
		}
	})
}

func TestSubmitImport_ErrorListBounded(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{MaxJobErrors: 3})

	rows := make([]string, 10)
	for i := range rows {
		rows[i] = ",Bad,Row" // every row missing the required email
	}

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData:   contactCSV(rows...),
		Mappings:   contactMappings,
		SkipErrors: true,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.ErrorRows != 10 {
		t.Errorf("ErrorRows = %d, want 10", final.ErrorRows)
	}
	if len(final.Errors) != 4 {
		t.Fatalf("Errors = %d entries, want 3 + summary", len(final.Errors))
	}
	if !strings.Contains(final.Errors[3], "7 more errors") {
		t.Errorf("summary entry = %q, want 7 more errors", final.Errors[3])
	}
}

func TestSubmitImport_RejectedBeforeJobCreation(t *testing.T) {
	store := newMemJobStore()
	svc := newImportService(store, &memSink{}, Options{})

	tests := []struct {
		name    string
		req     ImportRequest
		wantErr error
		errPart string
	}{
		{
			name: "unknown entity",
			req: ImportRequest{
				EntityType: "widgets",
				FileKind:   FileKindCSV,
				FileData:   contactCSV("a@example.com,Ada,L"),
				Mappings:   contactMappings,
			},
			errPart: "unknown entity",
		},
		{
			name: "no mapped columns",
			req: ImportRequest{
				EntityType: "contacts",
				FileKind:   FileKindCSV,
				FileData:   contactCSV("a@example.com,Ada,L"),
				Mappings:   []ColumnMapping{{SourceColumn: "Email"}},
			},
			wantErr: ErrNoMappedColumns,
		},
		{
			name: "unparseable file",
			req: ImportRequest{
				EntityType: "contacts",
				FileKind:   FileKindJSON,
				FileData:   []byte("{broken"),
				Mappings:   contactMappings,
			},
			wantErr: ErrParse,
		},
		{
			name: "no data rows",
			req: ImportRequest{
				EntityType: "contacts",
				FileKind:   FileKindCSV,
				FileData:   []byte("Email,First Name,Last Name\n"),
				Mappings:   contactMappings,
			},
			wantErr: ErrParse,
		},
		{
			name: "spreadsheet kind",
			req: ImportRequest{
				EntityType: "contacts",
				FileKind:   FileKindXLSX,
				FileData:   []byte("binary"),
				Mappings:   contactMappings,
			},
			wantErr: ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitImport(context.Background(), tt.req, nil)
			if err == nil {
				t.Fatal("SubmitImport() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.errPart != "" && !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error = %v, want mention of %q", err, tt.errPart)
			}
		})
	}

	// None of the rejected submissions may leave a job behind.
	jobs, _ := store.ListImportJobs(context.Background())
	if len(jobs) != 0 {
		t.Errorf("jobs created for rejected submissions: %d", len(jobs))
	}
}

func TestSubmitImport_TimeoutStillFinalizesJob(t *testing.T) {
	store := &ctxJobStore{newMemJobStore()}
	svc := NewService(store, stallSink{}, newMemAgreementStore(), nil,
		Options{JobTimeout: 20 * time.Millisecond})

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData:   contactCSV("a@example.com,Ada,Lovelace"),
		Mappings:   contactMappings,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	// The sink blocks until the job deadline expires, and the store rejects
	// writes with an expired context. The job must still land in a terminal
	// state rather than staying processing forever.
	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusFailed {
		t.Fatalf("final status = %q, want failed", final.Status)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on timed-out job")
	}
	if len(final.Errors) == 0 || !strings.Contains(final.Errors[0], "deadline") {
		t.Errorf("Errors = %v, want deadline mention", final.Errors)
	}

	// A terminal job is deletable; only processing jobs are refused.
	if err := svc.DeleteImportJob(context.Background(), job.ID); err != nil {
		t.Errorf("DeleteImportJob() after timeout error = %v", err)
	}
}

func TestSubmitImport_RejectsMappingForOtherEntity(t *testing.T) {
	store := newMemJobStore()
	svc := newImportService(store, &memSink{}, Options{})

	// A mapping finalized for contacts must not replay against tasks.
	_, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "tasks",
		FileKind:   FileKindCSV,
		FileData:   contactCSV("a@example.com,Ada,Lovelace"),
		Mappings:   contactMappings,
	}, nil)
	if err == nil {
		t.Fatal("SubmitImport() expected error for stale mapping")
	}
	if !strings.Contains(err.Error(), "not a field of") {
		t.Errorf("error = %v, want unknown-field rejection", err)
	}

	jobs, _ := store.ListImportJobs(context.Background())
	if len(jobs) != 0 {
		t.Errorf("job created for rejected submission: %d", len(jobs))
	}
}

func TestSubmitImport_AppliesTransforms(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{})

	mappings := []ColumnMapping{
		{SourceColumn: "Email", TargetField: "email", Required: true, Transform: "lower"},
		{SourceColumn: "First Name", TargetField: "firstName", Transform: "title"},
		{SourceColumn: "Last Name", TargetField: "lastName"},
		{SourceColumn: "Phone", TargetField: "phone", Transform: "phone"},
	}
	data := []byte("Email,First Name,Last Name,Phone\nADA@EXAMPLE.COM,ada,Lovelace,(02) 9999 1234\n")

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData:   data,
		Mappings:   mappings,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (errors: %v)", final.Status, final.Errors)
	}

	records, _ := sink.Query(context.Background(), "contacts", nil)
	rec := records[0]
	if rec["email"] != "ada@example.com" {
		t.Errorf("email = %q", rec["email"])
	}
	if rec["firstName"] != "Ada" {
		t.Errorf("firstName = %q", rec["firstName"])
	}
	if rec["phone"] != "0299991234" {
		t.Errorf("phone = %q", rec["phone"])
	}
}

func TestSubmitImport_KeylessEntityAlwaysCreates(t *testing.T) {
	store := newMemJobStore()
	sink := &memSink{}
	svc := newImportService(store, sink, Options{})

	mappings := []ColumnMapping{{SourceColumn: "Title", TargetField: "title", Required: true}}
	data := []byte("Title\nSame Task\nSame Task\n")

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "tasks",
		FileKind:   FileKindCSV,
		FileData:   data,
		Mappings:   mappings,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}

	final := waitForImportJob(t, store, job.ID)
	if final.Status != StatusCompleted || final.ErrorRows != 0 {
		t.Fatalf("status/errorRows = %q/%d, want completed/0", final.Status, final.ErrorRows)
	}
	if sink.count() != 2 {
		t.Errorf("sink records = %d, want 2 (no duplicate detection without key)", sink.count())
	}
}

func TestDeleteImportJob(t *testing.T) {
	store := newMemJobStore()
	svc := newImportService(store, &memSink{}, Options{})

	job, err := svc.SubmitImport(context.Background(), ImportRequest{
		EntityType: "contacts",
		FileKind:   FileKindCSV,
		FileData:   contactCSV("a@example.com,Ada,L"),
		Mappings:   contactMappings,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitImport() error = %v", err)
	}
	waitForImportJob(t, store, job.ID)

	if err := svc.DeleteImportJob(context.Background(), job.ID); err != nil {
		t.Fatalf("DeleteImportJob() error = %v", err)
	}
	if _, err := svc.GetImportJob(context.Background(), job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("after delete, Get error = %v, want ErrJobNotFound", err)
	}
}
