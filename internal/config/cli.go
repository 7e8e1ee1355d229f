package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ClientFlags is the flag surface for cmd/client, grounded on
// original_source/eventsource/client.py's argparse block (url/auth/
// keep-alive).
type ClientFlags struct {
	URL       string
	Username  string
	Password  string
	KeepAlive bool
	LogLevel  string
}

// ParseClientFlags parses os.Args-style args (exclude argv[0]) into a
// ClientFlags.
func ParseClientFlags(args []string) (*ClientFlags, error) {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	url := fs.String("url", "", "subscriber URL, e.g. http://host:port/poll/token (required)")
	user := fs.String("username", "", "HTTP Basic username (client-side pass-through only)")
	pass := fs.String("password", "", "HTTP Basic password")
	keepAlive := fs.Bool("keep-alive", false, "reconnect on every outcome, not just the listed retryable statuses")
	logLevel := fs.String("log_level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *url == "" {
		return nil, fmt.Errorf("--url is required")
	}
	return &ClientFlags{
		URL:       *url,
		Username:  *user,
		Password:  *pass,
		KeepAlive: *keepAlive,
		LogLevel:  *logLevel,
	}, nil
}

// PosterFlags is the flag surface for cmd/poster, grounded on
// original_source/eventsource/request.py's argparse block
// (url/action/target/data/json).
type PosterFlags struct {
	URL      string
	Action   string
	Target   string
	Data     string
	JSON     bool
	Token    string
	Timeout  time.Duration
	LogLevel string
}

// ParsePosterFlags parses os.Args-style args (exclude argv[0]) into a
// PosterFlags.
func ParsePosterFlags(args []string) (*PosterFlags, error) {
	fs := pflag.NewFlagSet("poster", pflag.ContinueOnError)
	baseURL := fs.String("url", "", "listener base URL, e.g. http://host:port (required)")
	action := fs.String("action", "ping", "action to post: ping|retry|close (or a variant-specific action)")
	target := fs.String("target", "", "target token (required)")
	data := fs.String("data", "", "payload to send as the POST body")
	isJSON := fs.Bool("json", false, "send data as-is expecting a JSON variant listener (no re-encoding here)")
	token := fs.String("token", "", "bearer token to send as Authorization: Bearer <token>")
	timeout := fs.String("timeout", "10s", "request timeout")
	logLevel := fs.String("log_level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *baseURL == "" {
		return nil, fmt.Errorf("--url is required")
	}
	if *target == "" {
		return nil, fmt.Errorf("--target is required")
	}
	d, err := time.ParseDuration(*timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid --timeout: %w", err)
	}
	return &PosterFlags{
		URL:      *baseURL,
		Action:   *action,
		Target:   *target,
		Data:     *data,
		JSON:     *isJSON,
		Token:    *token,
		Timeout:  d,
		LogLevel: *logLevel,
	}, nil
}
