package exchange

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memJobStore is an in-memory JobStore with the same terminal-state and
// deletion guards as the durable one.
type memJobStore struct {
	mu      sync.Mutex
	imports map[uuid.UUID]*ImportJob
	exports map[uuid.UUID]*ExportJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		imports: make(map[uuid.UUID]*ImportJob),
		exports: make(map[uuid.UUID]*ExportJob),
	}
}

func copyImportJob(j *ImportJob) *ImportJob {
	out := *j
	out.Errors = append([]string(nil), j.Errors...)
	return &out
}

func copyExportJob(j *ExportJob) *ExportJob {
	out := *j
	out.Columns = append([]string(nil), j.Columns...)
	return &out
}

func (s *memJobStore) CreateImportJob(_ context.Context, job *ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports[job.ID] = copyImportJob(job)
	return nil
}

func (s *memJobStore) SaveImportJob(_ context.Context, job *ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.imports[job.ID]; ok && cur.Status.Terminal() {
		return nil
	}
	s.imports[job.ID] = copyImportJob(job)
	return nil
}

func (s *memJobStore) GetImportJob(_ context.Context, id uuid.UUID) (*ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.imports[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyImportJob(job), nil
}

func (s *memJobStore) ListImportJobs(_ context.Context) ([]*ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*ImportJob
	for _, j := range s.imports {
		jobs = append(jobs, copyImportJob(j))
	}
	return jobs, nil
}

func (s *memJobStore) DeleteImportJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.imports[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusProcessing {
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	delete(s.imports, id)
	return nil
}

func (s *memJobStore) CreateExportJob(_ context.Context, job *ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[job.ID] = copyExportJob(job)
	return nil
}

func (s *memJobStore) SaveExportJob(_ context.Context, job *ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.exports[job.ID]; ok && cur.Status.Terminal() {
		return nil
	}
	s.exports[job.ID] = copyExportJob(job)
	return nil
}

func (s *memJobStore) GetExportJob(_ context.Context, id uuid.UUID) (*ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.exports[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyExportJob(job), nil
}

func (s *memJobStore) ListExportJobs(_ context.Context) ([]*ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*ExportJob
	for _, j := range s.exports {
		jobs = append(jobs, copyExportJob(j))
	}
	return jobs, nil
}

func (s *memJobStore) DeleteExportJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.exports[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusProcessing {
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	delete(s.exports, id)
	return nil
}

// ctxJobStore honors context cancellation on writes the way the durable
// store does: a save with an expired context fails.
type ctxJobStore struct {
	*memJobStore
}

func (s *ctxJobStore) SaveImportJob(ctx context.Context, job *ImportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memJobStore.SaveImportJob(ctx, job)
}

func (s *ctxJobStore) SaveExportJob(ctx context.Context, job *ExportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memJobStore.SaveExportJob(ctx, job)
}

// stallSink blocks every operation until the context is done, standing in for
// a database that stops responding mid-job.
type stallSink struct{}

func (stallSink) Upsert(ctx context.Context, _, _ string, _ map[string]string, _ bool) (UpsertOutcome, error) {
	<-ctx.Done()
	return OutcomeCreated, ctx.Err()
}

func (stallSink) Query(ctx context.Context, _ string, _ map[string]string) ([]map[string]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// memSink is an in-memory EntitySink keyed like the durable one.
type memSink struct {
	mu      sync.Mutex
	records []sinkRecord
}

type sinkRecord struct {
	entityType string
	naturalKey string
	fields     map[string]string
}

func (s *memSink) Upsert(_ context.Context, entityType, naturalKey string, fields map[string]string, updateExisting bool) (UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	if naturalKey != "" {
		for i, rec := range s.records {
			if rec.entityType == entityType && rec.naturalKey == naturalKey {
				if !updateExisting {
					return OutcomeCreated, ErrDuplicateRecord
				}
				s.records[i].fields = copied
				return OutcomeUpdated, nil
			}
		}
	}

	s.records = append(s.records, sinkRecord{entityType: entityType, naturalKey: naturalKey, fields: copied})
	return OutcomeCreated, nil
}

func (s *memSink) Query(_ context.Context, entityType string, filter map[string]string) ([]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]string
	for _, rec := range s.records {
		if rec.entityType != entityType {
			continue
		}
		match := true
		for k, v := range filter {
			if rec.fields[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec.fields)
		}
	}
	return out, nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// memAgreementStore records what was saved, in one piece.
type memAgreementStore struct {
	mu         sync.Mutex
	saveErr    error
	agreements map[uuid.UUID]*EnterpriseAgreement
	rates      map[uuid.UUID][]ExtractedPayRate
}

func newMemAgreementStore() *memAgreementStore {
	return &memAgreementStore{
		agreements: make(map[uuid.UUID]*EnterpriseAgreement),
		rates:      make(map[uuid.UUID][]ExtractedPayRate),
	}
}

func (s *memAgreementStore) SaveAgreement(_ context.Context, agreement *EnterpriseAgreement, rates []ExtractedPayRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *agreement
	s.agreements[agreement.ID] = &copied
	s.rates[agreement.ID] = append([]ExtractedPayRate(nil), rates...)
	return nil
}

func (s *memAgreementStore) GetAgreement(_ context.Context, id uuid.UUID) (*EnterpriseAgreement, []ExtractedPayRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agreement, ok := s.agreements[id]
	if !ok {
		return nil, nil, fmt.Errorf("agreement %s: not found", id)
	}
	copied := *agreement
	return &copied, append([]ExtractedPayRate(nil), s.rates[id]...), nil
}

// extractorFunc adapts a function to the RateExtractor interface.
type extractorFunc func(ctx context.Context, fileName string, document []byte) ([]ExtractedPayRate, error)

func (f extractorFunc) ExtractRates(ctx context.Context, fileName string, document []byte) ([]ExtractedPayRate, error) {
	return f(ctx, fileName, document)
}

// waitForImportJob polls until the job reaches a terminal status.
func waitForImportJob(t *testing.T, store JobStore, id uuid.UUID) *ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetImportJob(context.Background(), id)
		if err == nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("import job did not finish in time")
	return nil
}

// waitForExportJob polls until the job reaches a terminal status.
func waitForExportJob(t *testing.T, store JobStore, id uuid.UUID) *ExportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetExportJob(context.Background(), id)
		if err == nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("export job did not finish in time")
	return nil
}
