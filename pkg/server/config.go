// Package server provides the HTTP/WebSocket front door for realtime
// voice sessions.
package server

import (
	"log/slog"
	"os"
	"time"

	"github.com/verbly-ai/verbly/pkg/emotion"
	"github.com/verbly-ai/verbly/pkg/realtime"
	"github.com/verbly-ai/verbly/pkg/settings"
	"github.com/verbly-ai/verbly/pkg/usage"
)

// Config holds all server configuration.
type Config struct {
	// Server settings
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Authentication
	AuthMode string         `json:"auth_mode" yaml:"auth_mode"` // api_key, none
	APIKeys  []APIKeyConfig `json:"api_keys" yaml:"api_keys"`

	// Upstream provider
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`

	// Session limits
	Sessions SessionConfig `json:"sessions" yaml:"sessions"`

	// Observability
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`

	// CORS
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`

	// Request limits
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes" yaml:"max_request_body_bytes"`

	// Timeouts
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Collaborators. Nil values get safe defaults.
	Settings   settings.Lookup    `json:"-" yaml:"-"`
	Recorder   usage.Recorder     `json:"-" yaml:"-"`
	Classifier emotion.Classifier `json:"-" yaml:"-"`

	// Logger
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// APIKeyConfig defines an API key with associated metadata.
type APIKeyConfig struct {
	Key    string `json:"key" yaml:"key"`
	Name   string `json:"name" yaml:"name"`
	UserID string `json:"user_id" yaml:"user_id"`
}

// UpstreamConfig points at the conversational-AI provider.
type UpstreamConfig struct {
	URL    string `json:"url" yaml:"url"`
	APIKey string `json:"-" yaml:"-"`
}

// SessionConfig tunes the session registry.
type SessionConfig struct {
	MaxConcurrent   int           `json:"max_concurrent" yaml:"max_concurrent"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ReapInterval    time.Duration `json:"reap_interval" yaml:"reap_interval"`
	GreetingTimeout time.Duration `json:"greeting_timeout" yaml:"greeting_timeout"`
	TargetScript    string        `json:"target_script" yaml:"target_script"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path" yaml:"metrics_path"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	LogFormat      string `json:"log_format" yaml:"log_format"` // "json" or "text"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: 8080,

		AuthMode: "api_key",

		Upstream: UpstreamConfig{
			URL: "wss://api.openai.com/v1/realtime",
		},

		Sessions: SessionConfig{
			MaxConcurrent:   realtime.DefaultMaxSessions,
			IdleTimeout:     realtime.DefaultIdleTimeout,
			ReapInterval:    realtime.DefaultReapInterval,
			GreetingTimeout: realtime.DefaultGreetingTimeout,
			TargetScript:    realtime.DefaultTargetScript,
		},

		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
			LogLevel:       "info",
			LogFormat:      "json",
		},

		ReadTimeout:     60 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		AllowedOrigins:      []string{"*"},
		MaxRequestBodyBytes: 1 << 20,

		Logger: slog.Default(),
	}
}

// LoadUpstreamFromEnv fills upstream credentials from the environment when
// unset.
func (c *Config) LoadUpstreamFromEnv() {
	if c.Upstream.APIKey == "" {
		c.Upstream.APIKey = os.Getenv("UPSTREAM_API_KEY")
	}
	if url := os.Getenv("UPSTREAM_URL"); url != "" && c.Upstream.URL == "" {
		c.Upstream.URL = url
	}
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// WithHost sets the server host.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithPort sets the server port.
func WithPort(port int) ConfigOption {
	return func(c *Config) {
		c.Port = port
	}
}

// WithAuthMode sets the authentication mode.
func WithAuthMode(mode string) ConfigOption {
	return func(c *Config) {
		c.AuthMode = mode
	}
}

// WithAPIKey adds an API key.
func WithAPIKey(key, name, userID string) ConfigOption {
	return func(c *Config) {
		c.APIKeys = append(c.APIKeys, APIKeyConfig{Key: key, Name: name, UserID: userID})
	}
}

// WithUpstream sets the provider endpoint and credentials.
func WithUpstream(url, apiKey string) ConfigOption {
	return func(c *Config) {
		if url != "" {
			c.Upstream.URL = url
		}
		c.Upstream.APIKey = apiKey
	}
}

// WithSessionLimits sets the session cap and idle timeout.
func WithSessionLimits(maxConcurrent int, idleTimeout time.Duration) ConfigOption {
	return func(c *Config) {
		if maxConcurrent > 0 {
			c.Sessions.MaxConcurrent = maxConcurrent
		}
		if idleTimeout > 0 {
			c.Sessions.IdleTimeout = idleTimeout
		}
	}
}

// WithSettings sets the runtime settings lookup.
func WithSettings(lookup settings.Lookup) ConfigOption {
	return func(c *Config) {
		c.Settings = lookup
	}
}

// WithRecorder sets the usage recorder.
func WithRecorder(r usage.Recorder) ConfigOption {
	return func(c *Config) {
		c.Recorder = r
	}
}

// WithClassifier sets the emotion classifier.
func WithClassifier(cl emotion.Classifier) ConfigOption {
	return func(c *Config) {
		c.Classifier = cl
	}
}

// WithAllowedOrigins sets allowed CORS origins.
func WithAllowedOrigins(origins []string) ConfigOption {
	return func(c *Config) {
		c.AllowedOrigins = origins
	}
}

// WithMetrics enables or disables metrics.
func WithMetrics(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Observability.MetricsEnabled = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeouts sets server timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ConfigOption {
	return func(c *Config) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}
