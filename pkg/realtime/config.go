package realtime

import (
	"log/slog"
	"time"

	"github.com/verbly-ai/verbly/pkg/emotion"
	"github.com/verbly-ai/verbly/pkg/upstream"
	"github.com/verbly-ai/verbly/pkg/usage"
)

const (
	// DefaultMaxSessions caps concurrent live sessions.
	DefaultMaxSessions = 100
	// DefaultIdleTimeout is how long a session may sit without activity
	// before the reaper closes it.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultReapInterval is the reaper's sweep period.
	DefaultReapInterval = 30 * time.Second
	// DefaultGreetingTimeout bounds the wait for the client.ready signal
	// before the greeting is bootstrapped anyway.
	DefaultGreetingTimeout = 10 * time.Second
	// DefaultTargetScript filters AI transcript fragments.
	DefaultTargetScript = "Latin"
)

// Metrics receives session lifecycle observations. The server package
// provides a prometheus-backed implementation.
type Metrics interface {
	SessionStarted()
	SessionClosed(reason string, duration time.Duration)
	TurnCompleted()
	BargeIn()
	AudioBytes(direction string, n int)
	SessionsReaped(n int)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()                     {}
func (nopMetrics) SessionClosed(string, time.Duration) {}
func (nopMetrics) TurnCompleted()                      {}
func (nopMetrics) BargeIn()                            {}
func (nopMetrics) AudioBytes(string, int)              {}
func (nopMetrics) SessionsReaped(int)                  {}

// Config holds the registry's tunables and collaborators. Zero values get
// defaults from normalize; Adapter is the only required field.
type Config struct {
	MaxSessions     int
	IdleTimeout     time.Duration
	ReapInterval    time.Duration
	GreetingTimeout time.Duration
	TargetScript    string

	Adapter    upstream.Adapter
	Classifier emotion.Classifier
	Recorder   usage.Recorder
	Metrics    Metrics
	Logger     *slog.Logger
}

func (c *Config) normalize() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.GreetingTimeout <= 0 {
		c.GreetingTimeout = DefaultGreetingTimeout
	}
	if c.TargetScript == "" {
		c.TargetScript = DefaultTargetScript
	}
	if c.Recorder == nil {
		c.Recorder = usage.NopRecorder{}
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
