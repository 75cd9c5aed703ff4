// Package usage records a closed session's consumption. Recording is
// fire-and-forget: the session dispatches it once at close, failures are
// logged by the caller and never affect the conversation.
package usage

import (
	"context"
	"errors"
	"time"
)

// Summary describes one finished session.
type Summary struct {
	SessionID      string
	ConversationID string
	UserID         string
	StartedAt      time.Time
	Duration       time.Duration
	Turns          uint64
	AIChars        int
	UserChars      int
	CloseReason    string
}

// Recorder persists session summaries.
type Recorder interface {
	Record(ctx context.Context, s Summary) error
}

// NopRecorder discards summaries. Used when no sink is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Summary) error { return nil }

// MultiRecorder fans a summary out to every sink. All sinks are attempted;
// errors are joined.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, s Summary) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
