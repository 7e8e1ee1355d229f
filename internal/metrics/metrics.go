// Package metrics adapts the teacher's HTTP request metrics (bucketed
// latency histogram over chi route patterns) to the SSE domain: how many
// targets are currently subscribed, how many events get dispatched, and
// how long a dispatch pass takes.
package metrics

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxPathLabelLength bounds the HTTP metrics path label the same way the
// teacher's middleware does, to avoid unbounded cardinality from a
// misbehaving client.
const maxPathLabelLength = 256

var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

var connectedTargets = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "sse_connected_targets",
	Help: "Number of targets with a currently open subscription.",
})

var eventsDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sse_events_dispatched_total",
		Help: "Events successfully emitted to a subscriber stream, by action.",
	},
	[]string{"action"},
)

var eventsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sse_events_dropped_total",
		Help: "Events dropped before emission (invalid retry, write fault), by reason.",
	},
	[]string{"reason"},
)

var dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "sse_dispatch_duration_seconds",
	Help:    "Time spent draining one target's buffer in a single dispatch pass.",
	Buckets: prometheus.DefBuckets,
})

// RegisterDefault registers the Go/process collectors, the HTTP latency
// histogram, and the SSE-specific series. Safe to call once at startup;
// an AlreadyRegisteredError (e.g. from repeated calls in tests) is not
// treated as fatal.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "connected targets gauge", connectedTargets)
	mustRegister(logger, "events dispatched counter", eventsDispatched)
	mustRegister(logger, "events dropped counter", eventsDropped)
	mustRegister(logger, "dispatch duration histogram", dispatchDuration)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		} else {
			panic("metrics: failed to register " + name + ": " + err.Error())
		}
	}
}

// SetConnectedTargets records the current subscription count, per
// internal/registry.Registry.Len().
func SetConnectedTargets(n int) {
	connectedTargets.Set(float64(n))
}

// ObserveDispatch records one dispatch-loop pass: every event action it
// successfully emitted, and how long the whole pass took.
func ObserveDispatch(d time.Duration, actions ...string) {
	dispatchDuration.Observe(d.Seconds())
	for _, a := range actions {
		eventsDispatched.WithLabelValues(a).Inc()
	}
}

// ObserveDropped records one dropped event (e.g. an unparsable retry
// directive).
func ObserveDropped(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

// HTTPMetrics is a middleware recording request duration into
// http_request_duration_seconds, labeled by chi route pattern to avoid
// cardinality blowup from the opaque target tokens in the URL.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		if statusCode < 100 || statusCode > 599 {
			statusCode = http.StatusInternalServerError
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		if len(path) > maxPathLabelLength {
			truncateLen := maxPathLabelLength - 3
			if truncateLen < 1 {
				truncateLen = 1
			}
			path = truncateUTF8(path, truncateLen) + "..."
		}

		reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(statusCode)).Observe(duration)
	})
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
