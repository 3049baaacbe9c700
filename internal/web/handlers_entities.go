package web

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

// entitySummary is the list representation of a registered entity type.
type entitySummary struct {
	Type       string `json:"type"`
	Label      string `json:"label"`
	FieldCount int    `json:"fieldCount"`
	NaturalKey string `json:"naturalKey,omitempty"`
}

// handleListEntities returns the registered entity catalog.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	defs := s.service.ListEntities()

	out := make([]entitySummary, len(defs))
	for i, def := range defs {
		out[i] = entitySummary{
			Type:       def.Type,
			Label:      def.Label,
			FieldCount: len(def.Fields),
			NaturalKey: def.NaturalKey,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEntityFields returns the field specs of one entity type, in
// registry order.
func (s *Server) handleEntityFields(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	def, ok := exchange.Lookup(entityType)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", exchange.ErrUnknownEntity, entityType), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, def.Fields)
}

// handleDownloadTemplate serves an empty CSV with one header per field of the
// entity type, for operators to fill in.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	def, ok := exchange.Lookup(entityType)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", exchange.ErrUnknownEntity, entityType), http.StatusNotFound)
		return
	}

	headers := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		headers[i] = f.Label
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entityType+"_template.csv"))

	cw := csv.NewWriter(w)
	cw.Write(headers)
	cw.Flush()
}
