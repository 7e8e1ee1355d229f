// Command listener runs the SSE multiplexer: the subscriber endpoint
// (GET /poll/{target}) and the poster endpoint (POST /{action}/{target})
// over one fixed event variant for the process lifetime.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/auth"
	"github.com/guyzmo/ssemux/internal/config"
	"github.com/guyzmo/ssemux/internal/httpapi"
	"github.com/guyzmo/ssemux/internal/logging"
	"github.com/guyzmo/ssemux/internal/metrics"
	"github.com/guyzmo/ssemux/internal/middleware"
	"github.com/guyzmo/ssemux/internal/tlsutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	bootstrap := logging.BootstrapLogger()
	defer bootstrap.Sync()

	cfg, err := config.LoadListener(bootstrap)
	if err != nil {
		bootstrap.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger := logging.MustBuildLogger(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	policy, err := cfg.Policy()
	if err != nil {
		logger.Error("invalid variant", zap.Error(err))
		return 1
	}

	metrics.RegisterDefault(logger)

	srv := httpapi.New(policy, cfg.KeepAlive, logger)

	opts := httpapi.RouterOptions{
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		MetricsPath:         cfg.MetricsPath,
	}
	if cfg.EnableCORS {
		opts.CORS = middleware.CORSOptions{AllowedOrigins: cfg.CORSAllowedOrigins}
	}
	if cfg.PosterTokenSecret != "" {
		verifier := auth.NewBearerVerifier(cfg.PosterTokenSecret)
		opts.PosterAuth = func(r *http.Request) error {
			return verifier.Check(r.Header.Get("Authorization"))
		}
	}

	router := httpapi.NewRouter(srv, logger, opts)

	ctx, cancel := tlsutil.WithShutdownSignals(context.Background(), logger)
	defer cancel()

	logger.Info("starting listener",
		zap.String("variant", cfg.Variant),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Duration("keepalive", cfg.KeepAlive),
	)

	if err := tlsutil.ListenAndServeWithContext(ctx, cfg, router, logger); err != nil {
		logger.Error("listener exited with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
