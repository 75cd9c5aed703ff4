package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry owns the session map. It is the only structure shared across
// sessions; everything else is session-local. Admission is checked and the
// entry inserted under the registry lock before any upstream I/O starts,
// so two near-simultaneous requests cannot both pass the capacity check.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a registry. cfg.Adapter must be set.
func NewRegistry(cfg Config) *Registry {
	cfg.normalize()
	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create admits and starts a session. CapacityExceeded is returned before
// the upstream dial is attempted; a dial failure removes the entry and
// returns UpstreamConnectFailure.
func (r *Registry) Create(ctx context.Context, params SessionParams) (*Session, error) {
	if params.Client == nil {
		return nil, NewMalformedClientFrameError("session requires a client connection")
	}

	s := newSession(params, r.cfg, r.Remove)

	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxSessions {
		active := len(r.sessions)
		r.mu.Unlock()
		return nil, NewCapacityExceededError(
			fmt.Sprintf("session limit reached (%d active, max %d)", active, r.cfg.MaxSessions))
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.cfg.Metrics.SessionStarted()
	r.logger.Info("session admitted", "session_id", s.ID, "user_id", params.UserID)

	if err := s.connectUpstream(ctx, r.cfg.Adapter); err != nil {
		s.mu.Lock()
		s.sendLocked(&ErrorEvent{Message: "failed to reach the conversation service", Recoverable: false})
		s.closeLocked(ReasonConnectFailed)
		s.mu.Unlock()
		return nil, NewUpstreamConnectFailureError(err.Error())
	}
	return s, nil
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, NewResourceNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	return s, nil
}

// Remove deletes the map entry. Idempotent; called from every close path.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count returns the number of admitted sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// MaxSessions returns the configured cap.
func (r *Registry) MaxSessions() int { return r.cfg.MaxSessions }

// SessionStatus is one anonymized entry in the status snapshot.
type SessionStatus struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Connected       bool    `json:"connected"`
}

// StatusSnapshot is the read-only operational view.
type StatusSnapshot struct {
	ActiveSessions int             `json:"active_sessions"`
	MaxSessions    int             `json:"max_sessions"`
	Sessions       []SessionStatus `json:"sessions"`
}

// Snapshot reports active sessions without identities.
func (r *Registry) Snapshot() StatusSnapshot {
	sessions := r.all()
	snap := StatusSnapshot{
		ActiveSessions: len(sessions),
		MaxSessions:    r.cfg.MaxSessions,
		Sessions:       make([]SessionStatus, 0, len(sessions)),
	}
	now := time.Now()
	for _, s := range sessions {
		snap.Sessions = append(snap.Sessions, SessionStatus{
			DurationSeconds: now.Sub(s.StartedAt()).Seconds(),
			Connected:       s.Connected(),
		})
	}
	return snap
}

// ReapIdle closes every session idle past the threshold, through the same
// public close path an explicit close uses. Returns how many were reaped.
func (r *Registry) ReapIdle(now time.Time) int {
	reaped := 0
	for _, s := range r.all() {
		if now.Sub(s.LastActivity()) > r.cfg.IdleTimeout {
			s.Close(ReasonIdleTimeout)
			reaped++
		}
	}
	if reaped > 0 {
		r.cfg.Metrics.SessionsReaped(reaped)
		r.logger.Info("reaped idle sessions", "count", reaped)
	}
	return reaped
}

// Run drives the idle reaper until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapIdle(time.Now())
		}
	}
}

// CloseAll closes every session, used by the shutdown drain.
func (r *Registry) CloseAll(reason string) {
	for _, s := range r.all() {
		s.Close(reason)
	}
}

// all copies the session set so callers can take per-session locks without
// holding the registry lock.
func (r *Registry) all() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
