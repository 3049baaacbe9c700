package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newAgreementService(store *memAgreementStore, extractor RateExtractor) *Service {
	return NewService(newMemJobStore(), &memSink{}, store, extractor, Options{})
}

var sampleRates = []ExtractedPayRate{
	{Classification: "Level 1", Rate: "23.50", EffectiveDate: "2024-07-01"},
	{Classification: "Level 2", Rate: "26.80", EffectiveDate: "2024-07-01"},
}

func staticExtractor(rates []ExtractedPayRate, err error) RateExtractor {
	return extractorFunc(func(context.Context, string, []byte) ([]ExtractedPayRate, error) {
		return rates, err
	})
}

func TestDraftWorkflow_HappyPath(t *testing.T) {
	store := newMemAgreementStore()
	svc := newAgreementService(store, staticExtractor(sampleRates, nil))
	ctx := context.Background()

	draft := svc.CreateDraft()
	if draft.State != StateNoDocument {
		t.Fatalf("initial state = %q, want no_document", draft.State)
	}

	draft, err := svc.AttachDocument(draft.ID, "agreement.pdf", []byte("document text"))
	if err != nil {
		t.Fatalf("AttachDocument() error = %v", err)
	}
	if draft.State != StateDocumentSelected {
		t.Fatalf("state = %q, want document_selected", draft.State)
	}
	if draft.FileName != "agreement.pdf" {
		t.Errorf("FileName = %q", draft.FileName)
	}
	// Attaching a document must not start extraction on its own.
	if len(draft.Rates) != 0 {
		t.Errorf("rates present before extraction: %v", draft.Rates)
	}

	draft, err = svc.ExtractDraftRates(ctx, draft.ID)
	if err != nil {
		t.Fatalf("ExtractDraftRates() error = %v", err)
	}
	if draft.State != StateRatesAvailable {
		t.Fatalf("state = %q, want rates_available", draft.State)
	}
	if len(draft.Rates) != 2 {
		t.Fatalf("rates = %d, want 2", len(draft.Rates))
	}

	edited := []ExtractedPayRate{{Classification: "Level 1 (amended)", Rate: "24.00"}}
	draft, err = svc.UpdateDraftRates(draft.ID, edited)
	if err != nil {
		t.Fatalf("UpdateDraftRates() error = %v", err)
	}
	if draft.Rates[0].Classification != "Level 1 (amended)" {
		t.Errorf("edit not applied: %v", draft.Rates)
	}

	result, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "Metal Trades EA 2024"})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if result.RateCount != 1 {
		t.Errorf("RateCount = %d, want 1", result.RateCount)
	}
	if result.Warning != "" {
		t.Errorf("unexpected warning: %q", result.Warning)
	}
	if result.Agreement.FileName != "agreement.pdf" {
		t.Errorf("FileName = %q, want carried from draft", result.Agreement.FileName)
	}

	draft, _ = svc.GetDraft(draft.ID)
	if draft.State != StateSaved {
		t.Errorf("state = %q, want saved", draft.State)
	}
	if draft.AgreementID == nil || *draft.AgreementID != result.Agreement.ID {
		t.Errorf("draft not linked to saved agreement")
	}

	// The store received agreement and rates together.
	agreement, rates, err := store.GetAgreement(context.Background(), result.Agreement.ID)
	if err != nil {
		t.Fatalf("GetAgreement() error = %v", err)
	}
	if agreement.Title != "Metal Trades EA 2024" {
		t.Errorf("Title = %q", agreement.Title)
	}
	if len(rates) != 1 {
		t.Errorf("persisted rates = %d, want 1", len(rates))
	}
}

func TestDraftWorkflow_ExtractionFailureIsRecoverable(t *testing.T) {
	calls := 0
	extractor := extractorFunc(func(context.Context, string, []byte) ([]ExtractedPayRate, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("model unavailable")
		}
		return sampleRates, nil
	})
	svc := newAgreementService(newMemAgreementStore(), extractor)
	ctx := context.Background()

	draft := svc.CreateDraft()
	draft, _ = svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))

	_, err := svc.ExtractDraftRates(ctx, draft.ID)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}

	// The draft fell back to document_selected, so a retry works without
	// re-uploading the document.
	draft, _ = svc.GetDraft(draft.ID)
	if draft.State != StateDocumentSelected {
		t.Fatalf("state after failure = %q, want document_selected", draft.State)
	}

	draft, err = svc.ExtractDraftRates(ctx, draft.ID)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if draft.State != StateRatesAvailable || len(draft.Rates) != 2 {
		t.Errorf("retry state/rates = %q/%d", draft.State, len(draft.Rates))
	}
}

func TestDraftWorkflow_ReattachDiscardsRates(t *testing.T) {
	svc := newAgreementService(newMemAgreementStore(), staticExtractor(sampleRates, nil))
	ctx := context.Background()

	draft := svc.CreateDraft()
	draft, _ = svc.AttachDocument(draft.ID, "first.pdf", []byte("one"))
	draft, _ = svc.ExtractDraftRates(ctx, draft.ID)
	if len(draft.Rates) != 2 {
		t.Fatalf("setup: rates = %d", len(draft.Rates))
	}

	draft, err := svc.AttachDocument(draft.ID, "second.pdf", []byte("two"))
	if err != nil {
		t.Fatalf("AttachDocument() error = %v", err)
	}
	if len(draft.Rates) != 0 {
		t.Errorf("stale rates survived document replacement: %v", draft.Rates)
	}
	if draft.State != StateDocumentSelected {
		t.Errorf("state = %q, want document_selected", draft.State)
	}
	if draft.FileName != "second.pdf" {
		t.Errorf("FileName = %q, want second.pdf", draft.FileName)
	}
}

func TestDraftWorkflow_InvalidTransitions(t *testing.T) {
	svc := newAgreementService(newMemAgreementStore(), staticExtractor(sampleRates, nil))
	ctx := context.Background()

	t.Run("extract without document", func(t *testing.T) {
		draft := svc.CreateDraft()
		_, err := svc.ExtractDraftRates(ctx, draft.ID)
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("edit rates before extraction", func(t *testing.T) {
		draft := svc.CreateDraft()
		svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))
		_, err := svc.UpdateDraftRates(draft.ID, sampleRates)
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("save before document", func(t *testing.T) {
		draft := svc.CreateDraft()
		_, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "X"})
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("save twice", func(t *testing.T) {
		draft := svc.CreateDraft()
		svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))
		if _, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "X"}); err != nil {
			t.Fatalf("first save: %v", err)
		}
		_, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "X"})
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("second save error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("unknown draft", func(t *testing.T) {
		_, err := svc.GetDraft(uuid.New())
		if !errors.Is(err, ErrDraftNotFound) {
			t.Errorf("error = %v, want ErrDraftNotFound", err)
		}
	})
}

func TestDraftWorkflow_SaveWithoutRatesWarns(t *testing.T) {
	store := newMemAgreementStore()
	svc := newAgreementService(store, staticExtractor(nil, nil))
	ctx := context.Background()

	// Extraction never attempted: saving straight from document_selected is
	// allowed but flagged.
	draft := svc.CreateDraft()
	svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))

	result, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "Rateless EA"})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if result.RateCount != 0 {
		t.Errorf("RateCount = %d, want 0", result.RateCount)
	}
	if result.Warning == "" {
		t.Error("expected a warning for a save without rates")
	}
}

func TestDraftWorkflow_StoreFailureKeepsDraftUsable(t *testing.T) {
	store := newMemAgreementStore()
	store.saveErr = errors.New("connection refused")
	svc := newAgreementService(store, staticExtractor(sampleRates, nil))
	ctx := context.Background()

	draft := svc.CreateDraft()
	svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))
	svc.ExtractDraftRates(ctx, draft.ID)

	_, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "X"})
	if err == nil {
		t.Fatal("SaveDraft() expected error")
	}

	// Nothing was persisted and the draft did not advance.
	draft, _ = svc.GetDraft(draft.ID)
	if draft.State != StateRatesAvailable {
		t.Errorf("state = %q, want rates_available", draft.State)
	}

	// Retry succeeds once the store recovers.
	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	if _, err := svc.SaveDraft(ctx, draft.ID, EnterpriseAgreement{Title: "X"}); err != nil {
		t.Errorf("retry error = %v", err)
	}
}

func TestDraftTTL_IdleClockResetsOnUpdate(t *testing.T) {
	svc := NewService(newMemJobStore(), &memSink{}, newMemAgreementStore(),
		staticExtractor(sampleRates, nil), Options{DraftTTL: 100 * time.Millisecond})

	draft := svc.CreateDraft()

	// Touch the draft past the halfway point of the TTL.
	time.Sleep(60 * time.Millisecond)
	if _, err := svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc")); err != nil {
		t.Fatalf("AttachDocument() error = %v", err)
	}

	// The deadline measured from creation has now passed, but the draft was
	// recently updated, so it must still be there.
	time.Sleep(60 * time.Millisecond)
	if _, err := svc.GetDraft(draft.ID); err != nil {
		t.Fatalf("draft expired despite recent update: %v", err)
	}

	// Left idle, it eventually goes away.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.GetDraft(draft.ID); errors.Is(err, ErrDraftNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("draft never expired after going idle")
}

func TestSnapshotDraft_Isolation(t *testing.T) {
	svc := newAgreementService(newMemAgreementStore(), staticExtractor(sampleRates, nil))
	ctx := context.Background()

	draft := svc.CreateDraft()
	svc.AttachDocument(draft.ID, "ea.pdf", []byte("doc"))
	snapshot, _ := svc.ExtractDraftRates(ctx, draft.ID)

	// Mutating a returned snapshot must not affect the stored draft.
	snapshot.Rates[0].Rate = "tampered"

	fresh, _ := svc.GetDraft(draft.ID)
	if fresh.Rates[0].Rate == "tampered" {
		t.Error("snapshot mutation leaked into the draft")
	}
}
