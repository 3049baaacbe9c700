package web

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
)

// fileKindFromName detects the file kind from a file name extension.
func fileKindFromName(name string) (exchange.FileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return exchange.FileKindCSV, nil
	case ".json":
		return exchange.FileKindJSON, nil
	case ".xlsx":
		return exchange.FileKindXLSX, nil
	default:
		return "", fmt.Errorf("%w: unrecognized file extension %q", exchange.ErrParse, filepath.Ext(name))
	}
}

// readUploadedFile extracts and fully receives the "file" part of a multipart
// request, enforcing the configured size limit and reporting progress through
// fn as bytes arrive. A single request/response exchange cannot stream
// progress back to the client, so when fn is nil the increments land in the
// server log at debug level instead.
func (s *Server) readUploadedFile(r *http.Request, fn exchange.UploadProgressFunc) ([]byte, *multipart.FileHeader, error) {
	maxSize := s.cfg.Upload.MaxFileSize

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid multipart form", exchange.ErrParse)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no file provided", exchange.ErrParse)
	}
	defer file.Close()

	if fn == nil {
		logger := logging.FromContext(r.Context())
		name := header.Filename
		fn = func(percent int) {
			logger.Debug("upload progress", "file", name, "percent", percent)
		}
	}

	data, err := exchange.ReadUpload(file, header.Size, maxSize, fn)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}

// handlePreview parses an uploaded file and returns its columns, sample rows,
// and a proposed column mapping. Nothing is persisted.
//
// An optional "mapping" form value carries the operator's current mappings as
// JSON; inference preserves their choices and only fills unmapped columns.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	if _, ok := exchange.Lookup(entityType); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", exchange.ErrUnknownEntity, entityType), http.StatusNotFound)
		return
	}

	data, header, err := s.readUploadedFile(r, nil)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	kind, err := fileKindFromName(header.Filename)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	preview, err := exchange.BuildPreview(kind, data, entityType)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}

	// Re-run inference on top of the operator's mappings when supplied, so a
	// re-preview keeps their manual choices.
	if mappingJSON := r.FormValue("mapping"); mappingJSON != "" {
		var existing []exchange.ColumnMapping
		if err := json.Unmarshal([]byte(mappingJSON), &existing); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: invalid mapping payload", exchange.ErrParse), http.StatusBadRequest)
			return
		}
		def, _ := exchange.Lookup(entityType)
		preview.Mappings = exchange.InferMappings(preview.Columns, def, existing)
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleValidateMappings checks a mapping set without submitting an import,
// so the editor can surface blocking problems as the operator works.
func (s *Server) handleValidateMappings(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	def, ok := exchange.Lookup(entityType)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", exchange.ErrUnknownEntity, entityType), http.StatusNotFound)
		return
	}

	var mappings []exchange.ColumnMapping
	if err := json.NewDecoder(r.Body).Decode(&mappings); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid mapping payload", exchange.ErrParse), http.StatusBadRequest)
		return
	}

	if err := exchange.ValidateMappings(def, mappings); err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// handleSubmitImport receives a file and a confirmed mapping, validates both,
// and starts an import job. The response carries the job descriptor the
// client polls for progress.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	data, header, err := s.readUploadedFile(r, nil)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	kind, err := fileKindFromName(header.Filename)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var mappings []exchange.ColumnMapping
	mappingJSON := r.FormValue("mapping")
	if mappingJSON == "" {
		s.respondError(w, r, exchange.ErrNoMappedColumns, http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal([]byte(mappingJSON), &mappings); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid mapping payload", exchange.ErrParse), http.StatusBadRequest)
		return
	}

	updateExisting, _ := strconv.ParseBool(r.FormValue("updateExisting"))
	skipErrors, _ := strconv.ParseBool(r.FormValue("skipErrors"))

	job, err := s.service.SubmitImport(r.Context(), exchange.ImportRequest{
		EntityType:     entityType,
		FileName:       header.Filename,
		FileKind:       kind,
		FileData:       data,
		Mappings:       mappings,
		UpdateExisting: updateExisting,
		SkipErrors:     skipErrors,
	}, nil)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}
