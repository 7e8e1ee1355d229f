package middleware

import "net/http"

// LimitBodySize caps the POST body size accepted by the poster endpoint.
// maxBytes <= 0 disables the limit. Spec's Non-goals exclude byte-budget
// flow control for the *stream* (outbound), but an inbound POST body
// still needs a sane ceiling so a misbehaving publisher can't exhaust
// memory; this is the one place a byte limit applies.
func LimitBodySize(maxBytes int64) func(next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
