package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/careerforge/backend/internal/common"
)

// ErrorResponse is the universal error envelope (spec §6): every non-2xx
// response from /v1 shares this shape so clients need one parsing path.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *ErrorBody `json:"error"`
}

// ErrorBody carries the classified common.Error fields a client needs to
// decide whether and when to retry.
type ErrorBody struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    string         `json:"context,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Retryable  bool           `json:"retryable,omitempty"`
	RetryAfter string         `json:"retryAfter,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes the universal error envelope for a plain message,
// classified as a generic "internal" error.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: &ErrorBody{Code: "internal", Message: message, Timestamp: time.Now()},
	})
}

// WriteErrorWithCode writes the universal error envelope with an explicit code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: &ErrorBody{Code: code, Message: message, Timestamp: time.Now()},
	})
}

// WriteAPIError classifies err (via common.AsError) into the universal error
// envelope and the correct HTTP status code. Unclassified errors map to 500.
func WriteAPIError(w http.ResponseWriter, err error) {
	cErr, ok := common.AsError(err)
	if !ok {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := &ErrorBody{
		Code:      string(cErr.Kind),
		Message:   cErr.Message,
		Timestamp: time.Now(),
		Context:   cErr.Context,
		Metadata:  cErr.Metadata,
		Retryable: cErr.Retryable,
	}
	if cErr.RetryAfter > 0 {
		body.RetryAfter = cErr.RetryAfter.String()
	}

	WriteJSON(w, statusForErrorKind(cErr.Kind), ErrorResponse{Error: body})
}

// statusForErrorKind maps the error taxonomy (spec §4.9) to its HTTP status.
func statusForErrorKind(kind common.ErrorKind) int {
	switch kind {
	case common.ErrKindValidation:
		return http.StatusBadRequest
	case common.ErrKindForbidden:
		return http.StatusForbidden
	case common.ErrKindNotFound:
		return http.StatusNotFound
	case common.ErrKindConflict, common.ErrKindMaxRetriesExceeded:
		return http.StatusConflict
	case common.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case common.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case common.ErrKindCancelled:
		return http.StatusBadRequest
	case common.ErrKindTransient, common.ErrKindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /v1/parsing/{jobId}/result, calling
// PathParam(r, "/v1/parsing/", "/result") extracts the {jobId} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		idx := strings.Index(rest, suffix)
		if idx < 0 {
			return rest
		}
		return rest[:idx]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
