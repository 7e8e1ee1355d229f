package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/httputil"
)

// NotFoundHandler logs a 404 and returns a JSON error body. Only reached
// for paths outside the two-segment /{action}/{target} grammar — every
// well-formed request resolves to the poster or subscriber handler, which
// answer with their own plain-text bodies per spec §4.6/§4.7.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("not_found",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		httputil.JSONError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
	}
}

// MethodNotAllowedHandler logs a 405 and returns a JSON error body.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("method_not_allowed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		httputil.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "The requested HTTP method is not allowed for this resource")
	}
}
