package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
)

// DraftState is the workflow state of one agreement-creation attempt.
// Transitions are explicit; anything else returns ErrInvalidState.
//
//	NoDocument -> DocumentSelected -> Extracting -> RatesAvailable -> Saved
//	                     ^                 |
//	                     +--- (failure) ---+
type DraftState string

const (
	StateNoDocument       DraftState = "no_document"
	StateDocumentSelected DraftState = "document_selected"
	StateExtracting       DraftState = "extracting"
	StateRatesAvailable   DraftState = "rates_available"
	StateSaved            DraftState = "saved"
)

// AgreementDraft is the in-memory session for one agreement-creation attempt.
// Rates only become durable when the draft is saved; until then the whole
// attempt can be abandoned without a trace.
type AgreementDraft struct {
	ID          uuid.UUID          `json:"id"`
	State       DraftState         `json:"state"`
	FileName    string             `json:"fileName,omitempty"`
	Rates       []ExtractedPayRate `json:"rates,omitempty"`
	AgreementID *uuid.UUID         `json:"agreementId,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`

	document []byte
}

// CreateDraft starts a new agreement-creation attempt.
func (s *Service) CreateDraft() *AgreementDraft {
	now := time.Now().UTC()
	draft := &AgreementDraft{
		ID:        uuid.New(),
		State:     StateNoDocument,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.drafts[draft.ID] = draft
	s.mu.Unlock()

	s.expireDraft(draft.ID, s.draftTTL)
	return snapshotDraft(draft)
}

// GetDraft returns a snapshot of a draft.
func (s *Service) GetDraft(id uuid.UUID) (*AgreementDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return snapshotDraft(draft), nil
}

// AttachDocument selects (or replaces) the source document of a draft.
// Replacing the document discards previously extracted rates: stale rows
// never carry over to a new document. Extraction is NOT triggered here; it is
// an expensive external call the operator starts explicitly.
func (s *Service) AttachDocument(id uuid.UUID, fileName string, document []byte) (*AgreementDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}

	switch draft.State {
	case StateNoDocument, StateDocumentSelected, StateRatesAvailable:
	default:
		return nil, fmt.Errorf("%w: cannot attach document while %s", ErrInvalidState, draft.State)
	}

	draft.FileName = fileName
	draft.document = sanitizeUTF8(skipBOM(document))
	draft.Rates = nil
	draft.State = StateDocumentSelected
	draft.UpdatedAt = time.Now().UTC()

	return snapshotDraft(draft), nil
}

// ExtractDraftRates invokes the extraction service for the draft's document.
// The call blocks with no partial progress; on failure the draft returns to
// DocumentSelected and the operator may retry without re-uploading.
func (s *Service) ExtractDraftRates(ctx context.Context, id uuid.UUID) (*AgreementDraft, error) {
	s.mu.Lock()
	draft, ok := s.drafts[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if draft.State != StateDocumentSelected {
		state := draft.State
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot extract while %s", ErrInvalidState, state)
	}

	draft.State = StateExtracting
	draft.UpdatedAt = time.Now().UTC()
	fileName, document := draft.FileName, draft.document
	s.mu.Unlock()

	rates, err := s.extractor.ExtractRates(ctx, fileName, document)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The draft may have expired while the external call was in flight.
	draft, ok = s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}

	draft.UpdatedAt = time.Now().UTC()
	if err != nil {
		draft.State = StateDocumentSelected
		logging.FromContext(ctx).Warn("rate extraction failed",
			"draft_id", id.String(), "file", fileName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	draft.Rates = rates
	draft.State = StateRatesAvailable
	logging.FromContext(ctx).Info("rates extracted",
		"draft_id", id.String(), "file", fileName, "rates", len(rates))

	return snapshotDraft(draft), nil
}

// UpdateDraftRates replaces the candidate rate list with operator edits.
// Only valid once extraction has produced rates.
func (s *Service) UpdateDraftRates(id uuid.UUID, rates []ExtractedPayRate) (*AgreementDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if draft.State != StateRatesAvailable {
		return nil, fmt.Errorf("%w: cannot edit rates while %s", ErrInvalidState, draft.State)
	}

	draft.Rates = rates
	draft.UpdatedAt = time.Now().UTC()
	return snapshotDraft(draft), nil
}

// SaveResult reports the outcome of saving a draft.
type SaveResult struct {
	Agreement *EnterpriseAgreement `json:"agreement"`
	RateCount int                  `json:"rateCount"`
	Warning   string               `json:"warning,omitempty"`
}

// SaveDraft persists the agreement and its full rate set as one atomic unit.
// Saving with zero rates is permitted but warned, because extraction accuracy
// is not guaranteed. A draft whose extraction was never attempted may also be
// saved; the agreement then simply has no rates.
func (s *Service) SaveDraft(ctx context.Context, id uuid.UUID, agreement EnterpriseAgreement) (*SaveResult, error) {
	s.mu.Lock()
	draft, ok := s.drafts[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}

	switch draft.State {
	case StateDocumentSelected, StateRatesAvailable:
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot save while %s", ErrInvalidState, draft.State)
	}

	rates := make([]ExtractedPayRate, len(draft.Rates))
	copy(rates, draft.Rates)
	fileName := draft.FileName
	s.mu.Unlock()

	agreement.ID = uuid.New()
	agreement.FileName = fileName
	agreement.CreatedAt = time.Now().UTC()

	if err := s.agreements.SaveAgreement(ctx, &agreement, rates); err != nil {
		return nil, fmt.Errorf("save agreement: %w", err)
	}

	s.mu.Lock()
	if draft, ok := s.drafts[id]; ok {
		draft.State = StateSaved
		draft.AgreementID = &agreement.ID
		draft.UpdatedAt = time.Now().UTC()
	}
	s.mu.Unlock()

	result := &SaveResult{Agreement: &agreement, RateCount: len(rates)}
	if len(rates) == 0 {
		result.Warning = "agreement saved without any pay rates"
	}

	logging.FromContext(ctx).Info("agreement saved",
		"agreement_id", agreement.ID.String(), "rates", len(rates))

	return result, nil
}

// GetAgreement reads a persisted agreement and its rates.
func (s *Service) GetAgreement(ctx context.Context, id uuid.UUID) (*EnterpriseAgreement, []ExtractedPayRate, error) {
	return s.agreements.GetAgreement(ctx, id)
}

// expireDraft removes a draft once it has been idle for the TTL. Every
// mutation stamps UpdatedAt, so a draft the operator keeps working on stays
// alive; when the timer fires early the check reschedules it for the
// remainder of the idle window.
func (s *Service) expireDraft(id uuid.UUID, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		draft, ok := s.drafts[id]
		if !ok {
			return
		}
		if idle := time.Since(draft.UpdatedAt); idle < s.draftTTL {
			s.expireDraft(id, s.draftTTL-idle)
			return
		}
		delete(s.drafts, id)
	})
}

// snapshotDraft copies a draft for return to callers, leaving the document
// bytes behind.
func snapshotDraft(d *AgreementDraft) *AgreementDraft {
	out := *d
	out.document = nil
	out.Rates = make([]ExtractedPayRate, len(d.Rates))
	copy(out.Rates, d.Rates)
	return &out
}
