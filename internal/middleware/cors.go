package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSOptions mirrors the teacher's cors wiring, trimmed to what the
// listener's config actually exposes: a subscriber page is typically
// served from a different origin than the listener, so an EventSource()
// call needs CORS allowed on both the GET and (for browsers issuing the
// poster request directly) the POST route.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// CORS returns a middleware applying opts, or an identity middleware if
// opts.AllowedOrigins is empty (CORS disabled, the default).
func CORS(opts CORSOptions) func(next http.Handler) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"}
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 300
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: opts.AllowedMethods,
		AllowedHeaders: opts.AllowedHeaders,
		MaxAge:         opts.MaxAge,
	})
}
