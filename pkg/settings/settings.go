// Package settings resolves runtime configuration values that operators
// can change without a redeploy. Lookups are bounded by a short timeout
// and fall back to hardcoded defaults; a slow settings store must never
// delay session creation noticeably.
package settings

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultModel is used whenever no override is configured or the lookup
// does not answer in time.
const DefaultModel = "gpt-4o-realtime-preview"

const (
	lookupTimeout = 750 * time.Millisecond
	modelKey      = "realtime_model"
)

// Lookup resolves the upstream model name for new sessions.
type Lookup interface {
	// ModelName never fails; it falls back to a default instead.
	ModelName(ctx context.Context) string
}

// Static always answers with a fixed model name.
type Static struct {
	Model string
}

func (s Static) ModelName(context.Context) string {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

// PostgresLookup reads overrides from the runtime_settings table.
type PostgresLookup struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresLookup wraps an existing pool; the caller owns its lifecycle.
func NewPostgresLookup(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLookup{pool: pool, logger: logger}
}

// ModelName implements Lookup. Timeouts and errors fall back silently to
// DefaultModel; only a debug log records the miss.
func (l *PostgresLookup) ModelName(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var value string
	err := l.pool.QueryRow(ctx,
		`SELECT value FROM runtime_settings WHERE key = $1`, modelKey,
	).Scan(&value)
	if err != nil || value == "" {
		if err != nil {
			l.logger.Debug("settings lookup fell back to default",
				"key", modelKey, "error", err)
		}
		return DefaultModel
	}
	return value
}
