package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

// jobID extracts and parses the jobID URL parameter.
func jobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		return uuid.Nil, exchange.ErrJobNotFound
	}
	return id, nil
}

// confirmDelete checks the explicit confirmation query parameter required for
// destructive job operations.
func confirmDelete(r *http.Request) error {
	if r.URL.Query().Get("confirm") != "true" {
		return fmt.Errorf("deletion requires confirm=true")
	}
	return nil
}

// handleListImportJobs returns all import jobs, newest first.
func (s *Server) handleListImportJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.ListImportJobs(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*exchange.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetImportJob returns one import job for polling.
func (s *Server) handleGetImportJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	job, err := s.service.GetImportJob(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDeleteImportJob removes an import job record after explicit
// confirmation. Jobs still processing are refused.
func (s *Server) handleDeleteImportJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	if err := confirmDelete(r); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteImportJob(r.Context(), id); err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListExportJobs returns all export jobs, newest first.
func (s *Server) handleListExportJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.ListExportJobs(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*exchange.ExportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetExportJob returns one export job for polling.
func (s *Server) handleGetExportJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	job, err := s.service.GetExportJob(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDeleteExportJob removes an export job record and its file after
// explicit confirmation.
func (s *Server) handleDeleteExportJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	if err := confirmDelete(r); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteExportJob(r.Context(), id); err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
