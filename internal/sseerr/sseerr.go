// Package sseerr defines the error taxonomy surfaced by the SSE core, and
// the HTTP status each one maps to at the API boundary.
package sseerr

import (
	"errors"
	"net/http"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) where a cause
// needs attaching; compare with errors.Is.
var (
	// ErrAlreadyConnected is returned by the registry when a target already
	// has an open subscription.
	ErrAlreadyConnected = errors.New("sseerr: target already connected")

	// ErrUnknownTarget is returned when a POST addresses a target with no
	// open subscription.
	ErrUnknownTarget = errors.New("sseerr: unknown target")

	// ErrUnknownAction is returned when a POST action is outside the
	// active variant's allowed action set.
	ErrUnknownAction = errors.New("sseerr: unknown action")

	// ErrMalformedPayload is returned when a variant rejects a payload
	// (e.g. invalid JSON on a JSON variant).
	ErrMalformedPayload = errors.New("sseerr: malformed payload")

	// ErrUnknownField is returned by the client parser when an SSE line
	// carries a field name it does not recognize.
	ErrUnknownField = errors.New("sseerr: unknown field")

	// ErrWriteFault is returned internally when a stream write fails; it
	// never crosses the POST boundary, since the subscription is simply
	// torn down.
	ErrWriteFault = errors.New("sseerr: stream write fault")

	// ErrInvalidRetry marks a non-numeric retry directive payload. It is
	// logged and the offending event is dropped, never surfaced as an
	// HTTP error.
	ErrInvalidRetry = errors.New("sseerr: invalid retry value")

	// ErrPartialChunkOverflow is returned by the client parser when an
	// unterminated chunk grows past its configured bound.
	ErrPartialChunkOverflow = errors.New("sseerr: partial chunk exceeds bound")
)

// HTTPStatus maps a core error to the response status the API boundary
// should send. It walks the error chain with errors.Is, so wrapped errors
// still resolve. Returns 0 for errors with no HTTP surface (WriteFault,
// InvalidRetry, UnknownField — none of these are ever written to a POST
// response).
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAlreadyConnected):
		return http.StatusLocked // 423
	case errors.Is(err, ErrUnknownTarget):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	default:
		return 0
	}
}
