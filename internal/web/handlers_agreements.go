package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

// draftID extracts and parses the draftID URL parameter.
func draftID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		return uuid.Nil, exchange.ErrDraftNotFound
	}
	return id, nil
}

// handleCreateDraft starts a new agreement-creation session.
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	draft := s.service.CreateDraft()
	writeJSON(w, http.StatusCreated, draft)
}

// handleGetDraft returns the current state of a draft.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := draftID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	draft, err := s.service.GetDraft(id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleAttachDocument uploads (or replaces) the source document of a draft.
// Extraction does not start automatically; the operator triggers it.
func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	id, err := draftID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	data, header, err := s.readUploadedFile(r, nil)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	draft, err := s.service.AttachDocument(id, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleExtractRates runs rate extraction over the draft's document. The call
// blocks until the extraction service responds; on failure the draft stays
// usable and the operator may retry.
func (s *Server) handleExtractRates(w http.ResponseWriter, r *http.Request) {
	id, err := draftID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Extraction.Timeout)
	defer cancel()

	draft, err := s.service.ExtractDraftRates(ctx, id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleUpdateRates replaces the draft's candidate rates with operator edits.
func (s *Server) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	id, err := draftID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	var rates []exchange.ExtractedPayRate
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid rates payload", exchange.ErrParse), http.StatusBadRequest)
		return
	}

	draft, err := s.service.UpdateDraftRates(id, rates)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleSaveDraft persists the agreement and its reviewed rates atomically.
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	id, err := draftID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	var agreement exchange.EnterpriseAgreement
	if err := json.NewDecoder(r.Body).Decode(&agreement); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid agreement payload", exchange.ErrParse), http.StatusBadRequest)
		return
	}
	if agreement.Title == "" {
		s.respondError(w, r, fmt.Errorf("agreement title is required"), http.StatusBadRequest)
		return
	}

	result, err := s.service.SaveDraft(r.Context(), id, agreement)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// agreementResponse bundles a persisted agreement with its rates.
type agreementResponse struct {
	Agreement *exchange.EnterpriseAgreement `json:"agreement"`
	Rates     []exchange.ExtractedPayRate   `json:"rates"`
}

// handleGetAgreement reads a saved agreement and its pay rates.
func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "agreementID"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("agreement not found"), http.StatusNotFound)
		return
	}

	agreement, rates, err := s.service.GetAgreement(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	if rates == nil {
		rates = []exchange.ExtractedPayRate{}
	}
	writeJSON(w, http.StatusOK, agreementResponse{Agreement: agreement, Rates: rates})
}
