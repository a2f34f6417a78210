package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// timeFormat is the wire format for timestamps.
const timeFormat = time.RFC3339Nano

// Machine-readable error codes carried in every error response.
const (
	codeValidation        = "validation_error"
	codeUnauthorized      = "unauthorized"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codePayloadTooLarge   = "payload_too_large"
	codeRateLimitExceeded = "rate_limit_exceeded"
	codeInternal          = "internal_error"
)

// errorBody is the error envelope: code, message, optional structured
// details and the request correlation ID.
type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:      code,
		Message:   msg,
		Details:   details,
		RequestID: requestIDFrom(r),
	}})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// queryTime parses an RFC3339 query parameter, returning nil when absent or
// malformed.
func queryTime(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
