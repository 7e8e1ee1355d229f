package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/metrics"
	"github.com/guyzmo/ssemux/internal/middleware"
	sselog "github.com/guyzmo/ssemux/internal/logging"
)

// RouterOptions configures the standard middleware stack around a
// Server's routes, mirroring router/router.go's wiring.
type RouterOptions struct {
	MaxRequestBodyBytes int64
	CORS                middleware.CORSOptions
	// PosterAuth, if non-nil, gates the POST route; it should return a
	// non-nil error for a rejected request (e.g. a failed bearer-token
	// check). The listener wires internal/auth's JWT verifier here when
	// --poster_token_secret is set; by default it is nil (no auth beyond
	// the client-side Basic pass-through spec's Non-goals already allow).
	PosterAuth func(r *http.Request) error
	// MetricsPath, if non-empty, mounts the Prometheus handler there
	// (e.g. "/metrics").
	MetricsPath string
}

// NewRouter builds the full chi.Router for one Server: standard
// middleware (request id, real ip, recovery, body limit, HTTP metrics,
// request logging), the poster/subscriber routes, optional CORS, an
// optional poster-auth gate, and an optional metrics endpoint.
func NewRouter(s *Server, logger *zap.Logger, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(sselog.Recoverer(logger))
	r.Use(middleware.LimitBodySize(opts.MaxRequestBodyBytes))
	r.Use(metrics.HTTPMetrics)
	r.Use(sselog.RequestLogger(logger))
	r.Use(middleware.CORS(opts.CORS))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, metrics.Handler())
	}

	sub := s.Router()
	if opts.PosterAuth != nil {
		r.Route("/", func(rr chi.Router) {
			rr.With(requireAuthOnPost(opts.PosterAuth)).Mount("/", sub)
		})
	} else {
		r.Mount("/", sub)
	}

	return r
}

// requireAuthOnPost wraps check around POST requests only, leaving the
// subscriber GET untouched: spec's Non-goals cap auth at a client-side
// HTTP Basic pass-through, so the only thing this module can legitimately
// gate server-side is the poster endpoint.
func requireAuthOnPost(check func(r *http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				if err := check(r); err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer realm="poster"`)
					http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
