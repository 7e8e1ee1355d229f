// Package httputil holds the tiny bit of JSON-response plumbing the
// router's NotFound/MethodNotAllowed handlers need. Event payloads
// themselves are raw bytes handled by internal/event, not structured
// request bodies, so this package is deliberately smaller than the
// teacher's httputil: no BindJSON is needed anywhere in this domain.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status, clamping
// out-of-range status codes to 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes a structured JSON error with a short code and message.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}
