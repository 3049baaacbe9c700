package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
)

// exportRequestBody is the JSON payload for submitting an export job.
type exportRequestBody struct {
	FileType string   `json:"fileType"`
	Columns  []string `json:"columns,omitempty"`
	Filter   string   `json:"filter,omitempty"`
}

// handleSubmitExport starts an export job for an entity type.
func (s *Server) handleSubmitExport(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	var body exportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid export payload", exchange.ErrParse), http.StatusBadRequest)
		return
	}

	job, err := s.service.SubmitExport(r.Context(), exchange.ExportRequest{
		EntityType: entityType,
		FileType:   exchange.FileKind(body.FileType),
		Columns:    body.Columns,
		Filter:     body.Filter,
	})
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// handleDownloadExport streams the file of a completed export job.
// Downloading an incomplete job is a precondition error; a completed job can
// be downloaded any number of times.
func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, exchange.ErrJobNotFound, http.StatusNotFound)
		return
	}

	job, file, err := s.service.OpenDownload(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", exchange.ContentType(job.FileType))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.FileName))

	if _, err := io.Copy(w, file); err != nil {
		logging.FromContext(r.Context()).Error("export download interrupted",
			"job_id", id.String(), "error", err)
	}
}
