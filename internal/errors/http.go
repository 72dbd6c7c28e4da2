// Package errors defines the JSON error envelope every HTTP error response
// uses, and the mapping from domain errors to status codes.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/seralabs/telepilot/pkg/jobs"
)

// Stable error codes. Clients branch on these, not on messages.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidState       = "INVALID_STATE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPErrorResponse is the envelope for every error body.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError carries the machine-readable code, a human message, and
// optional context.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes the envelope with the given status. The request id is
// pulled from the request context when present.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	var requestID string
	if r != nil {
		requestID = middleware.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Details:   details,
		},
	})
}

// RespondWithError maps a domain error to its HTTP representation. Unknown
// errors become 500 INTERNAL_ERROR with the error text suppressed.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, jobs.ErrInvalidState):
		WriteError(w, r, http.StatusConflict, CodeInvalidState, err.Error(), nil)
	case errors.Is(err, jobs.ErrRateLimited):
		WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, err.Error(), nil)
	default:
		WriteError(w, r, http.StatusInternalServerError, CodeInternalError, "internal server error", nil)
	}
}
