package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/verbly-ai/verbly/internal/dotenv"
	"github.com/verbly-ai/verbly/pkg/emotion"
	"github.com/verbly-ai/verbly/pkg/server"
	"github.com/verbly-ai/verbly/pkg/settings"
	"github.com/verbly-ai/verbly/pkg/store"
	"github.com/verbly-ai/verbly/pkg/usage"
)

type serverDeps struct {
	buildOptions func(context.Context, *slog.Logger) ([]server.ConfigOption, error)
	newServer    func(...server.ConfigOption) (*server.Server, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		buildOptions: buildOptionsFromEnv,
		newServer:    server.NewServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildOptionsFromEnv assembles server options and collaborators from the
// environment. Optional backends (database, Stripe, classifier) are wired
// only when their credentials are present.
func buildOptionsFromEnv(ctx context.Context, logger *slog.Logger) ([]server.ConfigOption, error) {
	opts := []server.ConfigOption{
		server.WithLogger(logger),
		server.WithUpstream(os.Getenv("UPSTREAM_URL"), os.Getenv("UPSTREAM_API_KEY")),
	}

	if host := os.Getenv("HOST"); host != "" {
		opts = append(opts, server.WithHost(host))
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		opts = append(opts, server.WithPort(p))
	}
	if mode := os.Getenv("AUTH_MODE"); mode != "" {
		opts = append(opts, server.WithAuthMode(mode))
	}
	for _, key := range parseAPIKeys(os.Getenv("API_KEYS")) {
		opts = append(opts, server.WithAPIKey(key.Key, key.Name, key.UserID))
	}

	maxSessions := 0
	if raw := os.Getenv("MAX_SESSIONS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS %q: %w", raw, err)
		}
		maxSessions = n
	}
	var idleTimeout time.Duration
	if raw := os.Getenv("SESSION_IDLE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT %q: %w", raw, err)
		}
		idleTimeout = d
	}
	if maxSessions > 0 || idleTimeout > 0 {
		opts = append(opts, server.WithSessionLimits(maxSessions, idleTimeout))
	}

	var recorders usage.MultiRecorder

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		if err := store.Migrate(ctx, dsn); err != nil {
			return nil, err
		}
		pool, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, usage.NewPostgresRecorder(pool))
		opts = append(opts, server.WithSettings(settings.NewPostgresLookup(pool, logger)))
		logger.Info("database connected")
	}

	if stripeKey := os.Getenv("STRIPE_API_KEY"); stripeKey != "" {
		rec, err := usage.NewStripeMeterRecorder(stripeKey, os.Getenv("STRIPE_METER_EVENT"))
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, rec)
		logger.Info("stripe usage metering enabled")
	}
	if len(recorders) > 0 {
		opts = append(opts, server.WithRecorder(recorders))
	}

	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		model := os.Getenv("EMOTION_MODEL")
		if model == "" {
			model = "gemini-2.0-flash"
		}
		classifier, err := emotion.NewGenAIClassifier(ctx, geminiKey, model)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithClassifier(classifier))
		logger.Info("emotion classifier enabled", "model", model)
	}

	return opts, nil
}

// parseAPIKeys decodes API_KEYS entries of the form key:name:user_id,
// comma separated.
func parseAPIKeys(raw string) []server.APIKeyConfig {
	var keys []server.APIKeyConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		key := server.APIKeyConfig{Key: parts[0]}
		if len(parts) > 1 {
			key.Name = parts[1]
		}
		if len(parts) > 2 {
			key.UserID = parts[2]
		}
		if key.UserID == "" {
			key.UserID = key.Name
		}
		keys = append(keys, key)
	}
	return keys
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.buildOptions == nil || deps.newServer == nil {
		return errors.New("missing server dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := deps.buildOptions(ctx, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := deps.newServer(opts...)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	listenErrCh := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "verbly-server: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "verbly-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
