package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for service options.
const (
	defaultMaxErrors  = 20
	defaultJobTimeout = 10 * time.Minute
)

// Options tunes service behavior. Zero values fall back to defaults.
type Options struct {
	// MaxJobErrors bounds the per-job error list; anything beyond is
	// collapsed into an "N more errors" summary entry.
	MaxJobErrors int

	// JobTimeout is the maximum duration for one import or export job.
	JobTimeout time.Duration

	// ExportDir is where completed export files are written.
	ExportDir string

	// DraftTTL is how long an agreement draft is kept after its last update.
	DraftTTL time.Duration
}

// Service provides the core business logic for the bulk data exchange
// pipeline. All job status transitions go through the service's executors;
// readers only ever poll the job store.
type Service struct {
	jobs       JobStore
	sink       EntitySink
	agreements AgreementStore
	extractor  RateExtractor

	maxErrors  int
	jobTimeout time.Duration
	exportDir  string
	draftTTL   time.Duration

	mu     sync.RWMutex
	drafts map[uuid.UUID]*AgreementDraft

	running sync.WaitGroup
}

// NewService creates a new Service instance.
func NewService(jobs JobStore, sink EntitySink, agreements AgreementStore, extractor RateExtractor, opts Options) *Service {
	if opts.MaxJobErrors <= 0 {
		opts.MaxJobErrors = defaultMaxErrors
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = time.Hour
	}

	return &Service{
		jobs:       jobs,
		sink:       sink,
		agreements: agreements,
		extractor:  extractor,
		maxErrors:  opts.MaxJobErrors,
		jobTimeout: opts.JobTimeout,
		exportDir:  opts.ExportDir,
		draftTTL:   opts.DraftTTL,
		drafts:     make(map[uuid.UUID]*AgreementDraft),
	}
}

// ListEntities returns the registered entity catalogs.
func (s *Service) ListEntities() []EntityDefinition {
	return AllEntities()
}

// WaitForJobs blocks until all running import/export executors finish or the
// context is done. Used during graceful shutdown.
func (s *Service) WaitForJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
