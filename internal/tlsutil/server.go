// Package tlsutil starts the listener's HTTP server, with optional TLS
// via a manual cert/key pair or Let's Encrypt's http-01 challenge.
// Adapted from server/server.go, trimmed to the two TLS modes this
// module actually needs: dns-01/Route53 is dropped, since nothing in
// this module has a DNS provider to drive it (see DESIGN.md).
package tlsutil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"

	"github.com/guyzmo/ssemux/internal/config"
)

// WithShutdownSignals returns a context canceled on SIGINT/SIGTERM.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ListenAndServeWithContext starts the listener's HTTP or HTTPS server
// and blocks until ctx is canceled or the server hits a terminal error.
func ListenAndServeWithContext(ctx context.Context, cfg *config.ListenerConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return fmt.Errorf("ListenAndServeWithContext: cfg is nil")
	}
	if handler == nil {
		return fmt.Errorf("ListenAndServeWithContext: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}

	httpAddr := ":" + strconv.Itoa(cfg.HTTPPort)

	var (
		auxSrv   *http.Server
		ln       net.Listener
		baseLn   net.Listener
		serveErr = make(chan error, 1)
		auxErr   chan error
		err      error
	)

	cleanupListener := func() {
		if baseLn != nil {
			_ = baseLn.Close()
		}
	}

	switch {
	case !cfg.UseHTTPS:
		baseLn, err = net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
		ln = baseLn
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		go servePrimary(srv, ln, serveErr)

	case cfg.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.LetsEncryptCacheDir),
			Email:      cfg.LetsEncryptEmail,
		}

		auxSrv = &http.Server{
			Addr:              ":80",
			Handler:           m.HTTPHandler(httpRedirectHandler()),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		}
		auxErr = make(chan error, 1)
		go serveAuxiliary(auxSrv, auxErr)
		logger.Info("ACME + redirect server listening", zap.String("addr", auxSrv.Addr))

		if err := waitForCert(ctx, m, cfg.Domain, 60*time.Second); err != nil {
			logger.Warn("autocert pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}

		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}
		srv.TLSConfig = tlsCfg

		baseLn, err = net.Listen("tcp", ":443")
		if err != nil {
			_ = shutdownAux(auxSrv, context.Background())
			return fmt.Errorf("listen https: %w", err)
		}
		ln = tls.NewListener(baseLn, tlsCfg)
		logger.Info("HTTPS server (Let's Encrypt http-01) listening", zap.String("domain", cfg.Domain))
		go servePrimary(srv, ln, serveErr)

	default:
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("manual TLS selected but cert_file / key_file not provided")
		}
		if err := validateTLSFiles(cfg.CertFile, cfg.KeyFile); err != nil {
			logger.Warn("TLS key file security warning", zap.Error(err))
		}

		auxSrv = &http.Server{
			Addr:              ":80",
			Handler:           httpRedirectHandler(),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		}
		auxErr = make(chan error, 1)
		go serveAuxiliary(auxSrv, auxErr)

		cert, loadErr := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if loadErr != nil {
			_ = shutdownAux(auxSrv, context.Background())
			return fmt.Errorf("load TLS cert/key: %w", loadErr)
		}
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
		srv.TLSConfig = tlsCfg

		baseLn, err = net.Listen("tcp", ":443")
		if err != nil {
			_ = shutdownAux(auxSrv, context.Background())
			return fmt.Errorf("listen https: %w", err)
		}
		ln = tls.NewListener(baseLn, tlsCfg)
		logger.Info("HTTPS server (manual TLS) listening", zap.String("cert_file", cfg.CertFile))
		go servePrimary(srv, ln, serveErr)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = shutdownAux(auxSrv, shutdownCtx)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				cleanupListener()
				return fmt.Errorf("server shutdown: %w", err)
			}
			cleanupListener()
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serveErr:
			if err != nil && err != http.ErrServerClosed {
				_ = shutdownAux(auxSrv, context.Background())
				cleanupListener()
				return fmt.Errorf("primary server error: %w", err)
			}
			_ = shutdownAux(auxSrv, context.Background())
			cleanupListener()
			return nil

		case err := <-auxErr:
			if err != nil && err != http.ErrServerClosed {
				if closeErr := srv.Close(); closeErr != nil {
					logger.Error("failed to close primary server after auxiliary crash", zap.Error(closeErr))
				}
				cleanupListener()
				return fmt.Errorf("auxiliary server error: %w", err)
			}
			auxSrv = nil
			auxErr = nil
		}
	}
}

func servePrimary(srv *http.Server, ln net.Listener, ch chan<- error) {
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		ch <- err
		return
	}
	ch <- nil
}

func serveAuxiliary(auxSrv *http.Server, ch chan<- error) {
	if err := auxSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		ch <- err
		return
	}
	ch <- nil
}

func shutdownAux(auxSrv *http.Server, ctx context.Context) error {
	if auxSrv == nil {
		return nil
	}
	return auxSrv.Shutdown(ctx)
}

func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

func validateTLSFiles(certFile, keyFile string) error {
	certInfo, err := os.Stat(certFile)
	if err != nil {
		return fmt.Errorf("TLS certificate file: %w", err)
	}
	if certInfo.IsDir() {
		return fmt.Errorf("TLS certificate path is a directory: %s", certFile)
	}
	keyInfo, err := os.Stat(keyFile)
	if err != nil {
		return fmt.Errorf("TLS key file: %w", err)
	}
	if keyInfo.IsDir() {
		return fmt.Errorf("TLS key path is a directory: %s", keyFile)
	}
	if runtime.GOOS != "windows" && keyInfo.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("TLS key file %s has overly permissive permissions %o (recommended: 0600)", keyFile, keyInfo.Mode().Perm())
	}
	return nil
}

func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for cert for %q: %w", host, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}
