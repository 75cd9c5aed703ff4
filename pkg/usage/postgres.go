package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder inserts one row per closed session into session_usage.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder wraps an existing pool; the caller owns its lifecycle.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

func (r *PostgresRecorder) Record(ctx context.Context, s Summary) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_usage (
			session_id, conversation_id, user_id,
			started_at, duration_ms, turns,
			ai_transcript_chars, user_transcript_chars, close_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING`,
		s.SessionID, s.ConversationID, s.UserID,
		s.StartedAt, s.Duration.Milliseconds(), s.Turns,
		s.AIChars, s.UserChars, s.CloseReason,
	)
	if err != nil {
		return fmt.Errorf("usage: insert session %s: %w", s.SessionID, err)
	}
	return nil
}
