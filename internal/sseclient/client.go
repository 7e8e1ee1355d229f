package sseclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler receives each Event the client parses off the stream.
type Handler func(Event)

// Config configures a Client, grounded on client.py's EventSourceClient
// constructor arguments (url, username/password, keep_alive).
type Config struct {
	URL string
	// Username/Password, if Username is non-empty, are sent as HTTP
	// Basic auth on every request — the one client-side auth mechanism
	// spec's Non-goals allow.
	Username string
	Password string
	// KeepAlive mirrors the CLI --keep-alive flag (see ReconnectPolicy).
	KeepAlive bool
	// MaxPartialChunk bounds the parser's unterminated-chunk buffer; <=0
	// selects DefaultMaxPartialChunk.
	MaxPartialChunk int
	// HTTPClient, if nil, defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client consumes one subscriber SSE stream, reconnecting per
// ReconnectPolicy until Run's context is cancelled or a terminal outcome
// is reached. It is the Go counterpart of client.py's poll() loop.
type Client struct {
	cfg      Config
	parser   *Parser
	policy   ReconnectPolicy
	logger   *zap.Logger
	http     *http.Client
}

// New returns a Client ready to Run against cfg.
func New(cfg Config, logger *zap.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		parser: NewParser(cfg.MaxPartialChunk),
		policy: ReconnectPolicy{KeepAlive: cfg.KeepAlive},
		logger: logger,
		http:   hc,
	}
}

// Run connects, streams Events to handle, and reconnects per
// ReconnectPolicy until ctx is cancelled or the policy says to stop.
// It returns nil when the policy decides to stop (the symmetric
// counterpart of client.py's poll() returning after retry_timeout==-1),
// or ctx.Err() if the context was cancelled first.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	retryTimeout := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		outcome := c.attempt(ctx, handle)
		retryTimeout = c.policy.Decide(outcome, c.parser.RetryTimeout)

		if outcome.Err != nil {
			c.logger.Warn("sse stream attempt failed", zap.Error(outcome.Err), zap.Int("retry_timeout_ms", retryTimeout))
		} else {
			c.logger.Info("sse stream ended", zap.Int("status", outcome.StatusCode), zap.Int("retry_timeout_ms", retryTimeout))
		}

		if Sleep(ctx, retryTimeout) {
			return nil
		}
	}
}

// attempt performs one connect-and-stream cycle, returning how it ended.
func (c *Client) attempt(ctx context.Context, handle Handler) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return Outcome{Err: fmt.Errorf("build request: %w", err)}
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	if c.parser.LastEventID != "" {
		req.Header.Set("Last-Event-ID", c.parser.LastEventID)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Outcome{StatusCode: resp.StatusCode}
	}

	if err := c.handleStream(resp.Body, handle); err != nil {
		return Outcome{StatusCode: resp.StatusCode, Err: err}
	}
	return Outcome{StatusCode: resp.StatusCode}
}

// handleStream reads resp.Body chunk by chunk (mirroring Tornado's
// streaming_callback in client.py's handle_stream) and feeds each chunk
// to the Parser, invoking handle for every complete Event. Events
// completed by a chunk are delivered even if that same chunk also
// overflows the parser's partial-line buffer.
func (c *Client) handleStream(body io.Reader, handle Handler) error {
	r := bufio.NewReaderSize(body, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			events, perr := c.parser.Feed(buf[:n])
			for _, ev := range events {
				handle(ev)
			}
			if perr != nil {
				return perr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// WaitContext returns a context cancelled after timeout, for callers
// that want to bound Run rather than let it loop indefinitely. A timeout
// <= 0 returns a context that is cancelled only with parent or by the
// returned cancel function.
func WaitContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
