package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verbly-ai/verbly/pkg/prompt"
	"github.com/verbly-ai/verbly/pkg/realtime"
	"github.com/verbly-ai/verbly/pkg/settings"
	"github.com/verbly-ai/verbly/pkg/upstream"
	"github.com/verbly-ai/verbly/pkg/usage"
)

// Server is the realtime session front door.
type Server struct {
	config *Config
	logger *slog.Logger

	registry *realtime.Registry
	router   *realtime.Router
	settings settings.Lookup

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Middleware
	auth        *AuthMiddleware
	logging     *LoggingMiddleware
	recovery    *RecoveryMiddleware
	cors        *CORSMiddleware
	bodyLimiter *RequestBodyLimitMiddleware

	// Metrics
	metrics *Metrics

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Lifecycle
	reapCancel context.CancelFunc
	shutdown   atomic.Bool
}

// NewServer creates a new server. It fails with ServiceUnavailable when no
// upstream credentials are configured; there is no degraded mode.
func NewServer(opts ...ConfigOption) (*Server, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.LoadUpstreamFromEnv()

	if config.Upstream.APIKey == "" {
		return nil, realtime.NewServiceUnavailableError("no upstream credentials configured")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics("verbly")

	lookup := config.Settings
	if lookup == nil {
		lookup = settings.Static{}
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = usage.NopRecorder{}
	}

	registry := realtime.NewRegistry(realtime.Config{
		MaxSessions:     config.Sessions.MaxConcurrent,
		IdleTimeout:     config.Sessions.IdleTimeout,
		ReapInterval:    config.Sessions.ReapInterval,
		GreetingTimeout: config.Sessions.GreetingTimeout,
		TargetScript:    config.Sessions.TargetScript,
		Adapter: &upstream.WSAdapter{
			URL:    config.Upstream.URL,
			APIKey: config.Upstream.APIKey,
		},
		Classifier: config.Classifier,
		Recorder:   recorder,
		Metrics:    metrics,
		Logger:     logger,
	})

	s := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
		router:   realtime.NewRouter(logger),
		settings: lookup,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin:      originAllowed(config.AllowedOrigins),
		},
	}

	s.auth = NewAuthMiddleware(config.AuthMode, config.APIKeys, logger)
	s.logging = NewLoggingMiddleware(logger)
	s.recovery = NewRecoveryMiddleware(logger, metrics)
	s.cors = NewCORSMiddleware(config.AllowedOrigins)
	s.bodyLimiter = NewRequestBodyLimitMiddleware(config.MaxRequestBodyBytes)

	s.setupRoutes()

	return s, nil
}

// Registry exposes the session registry, mainly for tests and embedding.
func (s *Server) Registry() *realtime.Registry { return s.registry }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() {
	s.mux = http.NewServeMux()

	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	if s.config.Observability.MetricsEnabled {
		s.mux.Handle("GET "+s.config.Observability.MetricsPath, s.metrics.Handler())
	}

	s.mux.Handle("GET /v1/sessions/status", s.withMiddleware(http.HandlerFunc(s.handleStatus)))

	// WebSocket endpoint; auth happens inside the handler because the
	// upgrade cannot go through the wrapping middleware chain.
	s.mux.HandleFunc("GET /v1/sessions/live", s.handleLive)
}

// withMiddleware wraps a handler with all middleware, innermost first.
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = s.recovery.Recover(handler)
	handler = s.auth.Authenticate(handler)
	handler = s.bodyLimiter.Limit(handler)
	handler = s.cors.Handle(handler)
	handler = s.logging.Log(handler)
	return handler
}

// Start starts the server and the idle reaper.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	reapCtx, cancel := context.WithCancel(context.Background())
	s.reapCancel = cancel
	go s.registry.Run(reapCtx)

	s.logger.Info("server starting", "addr", addr, "max_sessions", s.registry.MaxSessions())

	return s.httpServer.Serve(listener)
}

// Shutdown gracefully shuts down: live sessions are drained with a
// session.terminated frame before the HTTP server stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdown.Swap(true) {
		return nil
	}
	s.logger.Info("server shutting down", "active_sessions", s.registry.Count())

	if s.reapCancel != nil {
		s.reapCancel()
	}
	s.registry.CloseAll(realtime.ReasonServerShutdown)

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "healthy",
		"active_sessions": s.registry.Count(),
	})
}

// handleStatus reports the anonymized session snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Snapshot())
}

// Client keepalive. The read deadline detects dead transports via
// ping/pong only; conversation idleness is the reaper's job, measured on
// lastActivityAt, which upstream pushes refresh too. A client quietly
// listening to a long response must not be cut off.
const (
	clientPongWait   = 60 * time.Second
	clientPingPeriod = 25 * time.Second
)

// originAllowed builds the upgrader's origin check from the configured
// CORS origins. Requests without an Origin header (non-browser clients)
// are allowed.
func originAllowed(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// handleLive runs one client's voice session over a WebSocket.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	keyConfig, ok := s.auth.AuthenticateWebSocket(r)
	if !ok {
		writeJSONError(w, realtime.NewAuthenticationError("Invalid API key"), "")
		return
	}

	q := r.URL.Query()
	personaID := q.Get("persona_id")
	if personaID == "" {
		writeJSONError(w, realtime.NewResourceNotFoundError("persona not specified"), "")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newWSClient(conn)

	model := s.settings.ModelName(r.Context())
	instructions := prompt.BuildInstructions(prompt.Context{
		PersonaName:        q.Get("persona_name"),
		PersonaDescription: q.Get("persona_description"),
		Scenario:           q.Get("scenario"),
		TargetLanguage:     q.Get("language"),
		Proficiency:        q.Get("proficiency"),
		UserName:           q.Get("user_name"),
	})

	sess, err := s.registry.Create(r.Context(), realtime.SessionParams{
		ConversationID: q.Get("conversation_id"),
		PersonaID:      personaID,
		UserID:         keyConfig.UserID,
		Client:         client,
		Model:          model,
		Instructions:   instructions,
		TargetScript:   q.Get("script"),
	})
	if err != nil {
		writeWSError(conn, normalizeError(err))
		_ = client.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(clientPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})
	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(clientPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingStop:
				return
			case <-ticker.C:
				if client.Ping() != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		// Binary frames are raw audio; everything else goes through the
		// JSON router.
		if msgType == websocket.BinaryMessage {
			sess.HandleAudioAppend(data)
			continue
		}
		s.router.Dispatch(sess, data)
	}

	sess.Close(realtime.ReasonClientClose)
}

func writeWSError(conn *websocket.Conn, apiErr *realtime.Error) {
	if apiErr == nil {
		apiErr = realtime.NewInternalError("unknown error")
	}
	payload, _ := json.Marshal(map[string]any{
		"type":  "error",
		"error": apiErr,
	})
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

// wsClient adapts a client websocket to realtime.ClientSender. Writes are
// mutex-serialized because session callbacks and detached tasks send
// concurrently.
type wsClient struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn}
}

func (c *wsClient) Send(ev realtime.Event) error {
	if c.closed.Load() {
		return errors.New("client connection is closed")
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping sends a keepalive ping, serialized with regular writes.
func (c *wsClient) Ping() error {
	if c.closed.Load() {
		return errors.New("client connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil,
		time.Now().Add(2*time.Second))
}

func (c *wsClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}

// encodeEvent serializes an event with its type tag injected.
func encodeEvent(ev realtime.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, err
	}
	obj["type"] = ev.EventType()
	return json.Marshal(obj)
}
