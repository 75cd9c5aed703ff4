package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryCapacityExceeded(t *testing.T) {
	cfg := testConfig(&fakeAdapter{})
	cfg.MaxSessions = 2
	reg := NewRegistry(cfg)

	for i := 0; i < 2; i++ {
		if _, err := reg.Create(context.Background(), SessionParams{Client: &fakeClient{}}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	_, err := reg.Create(context.Background(), SessionParams{Client: &fakeClient{}})
	var rtErr *Error
	if !errors.As(err, &rtErr) || rtErr.Type != ErrCapacityExceeded {
		t.Fatalf("expected capacity_exceeded, got %v", err)
	}
	if reg.Count() != 2 {
		t.Errorf("rejected session must not occupy a slot, count %d", reg.Count())
	}
}

func TestRegistryConnectFailureReleasesSlot(t *testing.T) {
	adapter := &fakeAdapter{connectErr: errors.New("dial refused")}
	reg := NewRegistry(testConfig(adapter))
	client := &fakeClient{}

	_, err := reg.Create(context.Background(), SessionParams{Client: client})
	var rtErr *Error
	if !errors.As(err, &rtErr) || rtErr.Type != ErrUpstreamConnectFailure {
		t.Fatalf("expected upstream_connect_failure, got %v", err)
	}
	if reg.Count() != 0 {
		t.Errorf("failed session must be removed, count %d", reg.Count())
	}

	errs := client.ofType("error")
	if len(errs) != 1 || errs[0].(*ErrorEvent).Recoverable {
		t.Fatalf("expected one non-recoverable error frame, got %v", errs)
	}
	term := client.ofType("session.terminated")
	if len(term) != 1 || term[0].(*SessionTerminatedEvent).Reason != ReasonConnectFailed {
		t.Fatalf("expected termination with %q, got %v", ReasonConnectFailed, term)
	}
}

func TestRegistryRejectsNilClient(t *testing.T) {
	reg := NewRegistry(testConfig(&fakeAdapter{}))
	_, err := reg.Create(context.Background(), SessionParams{})
	var rtErr *Error
	if !errors.As(err, &rtErr) || rtErr.Type != ErrMalformedClientFrame {
		t.Fatalf("expected malformed_client_frame, got %v", err)
	}
}

func TestRegistryGetAndRemove(t *testing.T) {
	reg, sess, _, _ := newTestSession(t, testConfig(nil))

	got, err := reg.Get(sess.ID)
	if err != nil || got != sess {
		t.Fatalf("expected lookup to return the session, got %v, %v", got, err)
	}

	reg.Remove(sess.ID)
	reg.Remove(sess.ID) // idempotent

	_, err = reg.Get(sess.ID)
	var rtErr *Error
	if !errors.As(err, &rtErr) || rtErr.Type != ErrResourceNotFound {
		t.Fatalf("expected resource_not_found, got %v", err)
	}
}

func TestRegistrySnapshotIsAnonymized(t *testing.T) {
	cfg := testConfig(&fakeAdapter{})
	cfg.MaxSessions = 7
	reg := NewRegistry(cfg)
	if _, err := reg.Create(context.Background(), SessionParams{
		Client: &fakeClient{},
		UserID: "user-secret",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap := reg.Snapshot()
	if snap.ActiveSessions != 1 || snap.MaxSessions != 7 {
		t.Errorf("unexpected counters %+v", snap)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("expected one entry, got %d", len(snap.Sessions))
	}
	if !snap.Sessions[0].Connected {
		t.Error("expected connected entry")
	}
	if snap.Sessions[0].DurationSeconds < 0 {
		t.Error("expected non-negative duration")
	}
}

func TestReapIdleClosesOnlyStaleSessions(t *testing.T) {
	cfg := testConfig(&fakeAdapter{})
	cfg.IdleTimeout = time.Minute
	reg := NewRegistry(cfg)

	fresh, err := reg.Create(context.Background(), SessionParams{Client: &fakeClient{}})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	staleClient := &fakeClient{}
	stale, err := reg.Create(context.Background(), SessionParams{Client: staleClient})
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}

	stale.mu.Lock()
	stale.lastActivityAt = time.Now().Add(-2 * time.Minute)
	stale.mu.Unlock()

	if n := reg.ReapIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if reg.Count() != 1 {
		t.Errorf("expected one remaining session, got %d", reg.Count())
	}
	if fresh.State() != StateActive {
		t.Errorf("fresh session must stay active, got %s", fresh.State())
	}
	term := staleClient.ofType("session.terminated")
	if len(term) != 1 || term[0].(*SessionTerminatedEvent).Reason != ReasonIdleTimeout {
		t.Fatalf("expected idle_timeout termination, got %v", term)
	}

	// A second sweep over the same clock finds nothing new.
	if n := reg.ReapIdle(time.Now()); n != 0 {
		t.Errorf("expected nothing reaped on the second sweep, got %d", n)
	}
}

func TestCloseAllDrainsEverySession(t *testing.T) {
	reg := NewRegistry(testConfig(&fakeAdapter{}))
	clients := make([]*fakeClient, 3)
	for i := range clients {
		clients[i] = &fakeClient{}
		if _, err := reg.Create(context.Background(), SessionParams{Client: clients[i]}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	reg.CloseAll(ReasonServerShutdown)

	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Count())
	}
	for i, c := range clients {
		term := c.ofType("session.terminated")
		if len(term) != 1 || term[0].(*SessionTerminatedEvent).Reason != ReasonServerShutdown {
			t.Errorf("client %d: expected shutdown termination, got %v", i, term)
		}
	}
}
