package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/verbly-ai/verbly/pkg/realtime"
)

// contextKey is a type for context keys.
type contextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user ID.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyAPIKeyName is the context key for the API key name.
	ContextKeyAPIKeyName contextKey = "api_key_name"
	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID contextKey = "request_id"
)

// AuthMiddleware provides authentication middleware.
type AuthMiddleware struct {
	keys   map[string]APIKeyConfig
	logger *slog.Logger
	mode   string
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(mode string, keys []APIKeyConfig, logger *slog.Logger) *AuthMiddleware {
	keyMap := make(map[string]APIKeyConfig)
	for _, k := range keys {
		keyMap[k.Key] = k
	}
	if mode == "" {
		mode = "api_key"
	}
	return &AuthMiddleware{keys: keyMap, logger: logger, mode: mode}
}

// Authenticate is the HTTP middleware handler.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.mode == "none" {
			ctx := context.WithValue(r.Context(), ContextKeyUserID, "anonymous")
			ctx = context.WithValue(ctx, ContextKeyAPIKeyName, "none")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			writeJSONError(w, realtime.NewAuthenticationError("Missing API key"), requestIDFromContext(r.Context()))
			return
		}

		keyConfig, ok := a.keys[key]
		if !ok {
			writeJSONError(w, realtime.NewAuthenticationError("Invalid API key"), requestIDFromContext(r.Context()))
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserID, keyConfig.UserID)
		ctx = context.WithValue(ctx, ContextKeyAPIKeyName, keyConfig.Name)

		if a.logger != nil {
			a.logger.Debug("request authenticated",
				"user_id", keyConfig.UserID,
				"key_name", keyConfig.Name,
				"path", r.URL.Path,
			)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticateWebSocket extracts and validates the API key for WebSocket
// connections, which may pass the key as a query parameter.
func (a *AuthMiddleware) AuthenticateWebSocket(r *http.Request) (APIKeyConfig, bool) {
	if a.mode == "none" {
		return APIKeyConfig{UserID: "anonymous"}, true
	}
	key := extractAPIKey(r)
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if key == "" {
		return APIKeyConfig{}, false
	}
	keyConfig, ok := a.keys[key]
	return keyConfig, ok
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// LoggingMiddleware provides request logging.
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Log is the HTTP middleware handler.
func (l *LoggingMiddleware) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)

		rw := NewResponseWriter(w)

		if l.logger != nil {
			l.logger.Debug("request started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
		}

		next.ServeHTTP(rw, r)

		if l.logger != nil {
			duration := time.Since(start)
			l.logger.Info("request completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.StatusCode,
				"bytes", rw.BytesWritten,
				"duration_ms", duration.Milliseconds(),
			)
		}
	})
}

// CORSMiddleware adds CORS headers.
type CORSMiddleware struct {
	allowedOrigins []string
}

// NewCORSMiddleware creates a new CORS middleware.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &CORSMiddleware{allowedOrigins: allowedOrigins}
}

// Handle is the HTTP middleware handler.
func (c *CORSMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range c.allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestBodyLimitMiddleware enforces a maximum request body size.
type RequestBodyLimitMiddleware struct {
	maxBytes int64
}

// NewRequestBodyLimitMiddleware creates a new body size limit middleware.
func NewRequestBodyLimitMiddleware(maxBytes int64) *RequestBodyLimitMiddleware {
	return &RequestBodyLimitMiddleware{maxBytes: maxBytes}
}

// Limit applies the request body size limit.
func (m *RequestBodyLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.maxBytes <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware recovers from panics.
type RecoveryMiddleware struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *slog.Logger, metrics *Metrics) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger, metrics: metrics}
}

// Recover is the HTTP middleware handler.
func (rm *RecoveryMiddleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if rm.logger != nil {
					rm.logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
				}
				if rm.metrics != nil {
					rm.metrics.RecordError("panic")
				}
				writeJSONErrorWithStatus(w, http.StatusInternalServerError,
					realtime.NewInternalError("Internal server error"), requestIDFromContext(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

var (
	requestCounter   uint64
	requestCounterMu sync.Mutex
)

func generateRequestID() string {
	requestCounterMu.Lock()
	requestCounter++
	count := requestCounter
	requestCounterMu.Unlock()
	return "req_" + time.Now().Format("20060102150405") + "_" + uintToString(count)
}

func uintToString(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte(n%10) + '0'
		n /= 10
	}
	return string(buf[i:])
}
