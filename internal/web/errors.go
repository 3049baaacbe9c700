package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode)
//  3. Error is mapped via exchange.MapError to get a user-friendly message
//  4. Technical error + context is logged with request ID for correlation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns a JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := exchange.MapError(err)

	// Get request ID for correlation
	requestID := middleware.GetReqID(r.Context())

	// Log the technical error with context
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", requestID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError picks the HTTP status for a service error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, exchange.ErrJobNotFound),
		errors.Is(err, exchange.ErrDraftNotFound),
		errors.Is(err, exchange.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrJobRunning),
		errors.Is(err, exchange.ErrJobNotReady),
		errors.Is(err, exchange.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrParse),
		errors.Is(err, exchange.ErrPreviewUnsupported),
		errors.Is(err, exchange.ErrNoMappedColumns),
		errors.Is(err, exchange.ErrRequiredUnmapped):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
