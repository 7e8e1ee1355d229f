// Package config loads process configuration the way config/config.go
// does: defaults, then an optional config.* file, then environment
// variables, then explicit flags, in ascending precedence. It is
// trimmed to what this module's three executables actually need —
// there is no database, mail, or multi-tenant app-config layer here.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/event"
)

// ListenerConfig configures the cmd/listener executable: the HTTP
// surface, TLS, the fixed event variant, keepalive cadence, and the
// optional poster bearer-token secret.
type ListenerConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	HTTPPort int  `mapstructure:"http_port"`
	UseHTTPS bool `mapstructure:"use_https"`

	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	UseLetsEncrypt      bool   `mapstructure:"use_lets_encrypt"`
	LetsEncryptEmail    string `mapstructure:"lets_encrypt_email"`
	LetsEncryptCacheDir string `mapstructure:"lets_encrypt_cache_dir"`
	Domain              string `mapstructure:"domain"`

	// Variant selects one of event.PolicyByName's four names; fixed for
	// the process lifetime per spec §3.
	Variant string `mapstructure:"variant"`

	KeepAlive time.Duration `mapstructure:"keepalive"`

	MaxRequestBodyBytes int64 `mapstructure:"max_request_body_bytes"`

	EnableCORS         bool     `mapstructure:"enable_cors"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// PosterTokenSecret, if non-empty, requires a valid HMAC JWT bearer
	// token on every POST (see internal/auth). Empty disables poster
	// auth, matching spec's Non-goals (no auth model is required).
	PosterTokenSecret string `mapstructure:"poster_token_secret"`

	MetricsPath string `mapstructure:"metrics_path"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Policy resolves the configured Variant to an event.Policy.
func (c ListenerConfig) Policy() (event.Policy, error) {
	return event.PolicyByName(c.Variant)
}

// LoadListener merges defaults -> config.* file -> env vars (SSEMUX_*)
// -> explicit flags into a ListenerConfig, mirroring config/config.go's
// Load precedence.
func LoadListener(logger *zap.Logger) (*ListenerConfig, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info("loaded .env file")
	}

	fs := pflag.NewFlagSet("listener", pflag.ContinueOnError)
	fs.String("env", "dev", `runtime environment "dev"|"prod"`)
	fs.String("log_level", "info", "log level")
	fs.Int("http_port", 8080, "HTTP port")
	fs.Bool("use_https", false, "serve HTTPS")
	fs.String("cert_file", "", "TLS cert file (manual TLS)")
	fs.String("key_file", "", "TLS key file (manual TLS)")
	fs.Bool("use_lets_encrypt", false, "use Let's Encrypt (http-01 only)")
	fs.String("lets_encrypt_email", "", "ACME account e-mail")
	fs.String("lets_encrypt_cache_dir", "letsencrypt-cache", "ACME cache dir")
	fs.String("domain", "", "domain for TLS or ACME")
	fs.String("variant", "string", `event variant: "string"|"json"|"string-id"|"json-id"`)
	fs.String("keepalive", "15s", `keepalive comment cadence, "0" disables`)
	fs.Int64("max_request_body_bytes", 2<<20, "max POST body size in bytes")
	fs.Bool("enable_cors", false, "enable CORS on the subscriber/poster routes")
	fs.String("cors_allowed_origins", "", `JSON array of origins, e.g. '["https://a.example"]'`)
	fs.String("poster_token_secret", "", "HMAC secret required as a bearer JWT on POST; empty disables poster auth")
	fs.String("metrics_path", "/metrics", "path to mount the Prometheus handler at; empty disables it")
	fs.String("read_header_timeout", "10s", "HTTP read header timeout")
	fs.String("read_timeout", "15s", "HTTP read timeout")
	fs.String("write_timeout", "0s", "HTTP write timeout; 0 disables (subscriber streams are long-lived)")
	fs.String("idle_timeout", "120s", "HTTP idle timeout")
	fs.String("shutdown_timeout", "15s", "graceful shutdown timeout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SSEMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		b, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			if logger != nil {
				logger.Warn("cannot decode config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	var cfg ListenerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode listener config: %w", err)
	}

	cfg.KeepAlive, _ = parseDuration(v.GetString("keepalive"), 15*time.Second)
	cfg.ReadHeaderTimeout, _ = parseDuration(v.GetString("read_header_timeout"), 10*time.Second)
	cfg.ReadTimeout, _ = parseDuration(v.GetString("read_timeout"), 15*time.Second)
	cfg.WriteTimeout, _ = parseDuration(v.GetString("write_timeout"), 0)
	cfg.IdleTimeout, _ = parseDuration(v.GetString("idle_timeout"), 120*time.Second)
	cfg.ShutdownTimeout, _ = parseDuration(v.GetString("shutdown_timeout"), 15*time.Second)

	origins := v.GetString("cors_allowed_origins")
	if origins != "" {
		cfg.CORSAllowedOrigins = splitJSONOrCSV(origins)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c ListenerConfig) validate() error {
	if _, err := event.PolicyByName(c.Variant); err != nil {
		return fmt.Errorf("invalid variant %q: %w", c.Variant, err)
	}
	if c.UseHTTPS && !c.UseLetsEncrypt && (c.CertFile == "" || c.KeyFile == "") {
		return fmt.Errorf("use_https requires cert_file+key_file or use_lets_encrypt")
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	return d, nil
}

// splitJSONOrCSV accepts either a JSON array string (as the flag help
// text advertises) or a plain comma-separated list.
func splitJSONOrCSV(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
