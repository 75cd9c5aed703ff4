package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 15 * time.Second

// WSAdapter dials the provider's realtime websocket endpoint.
type WSAdapter struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// APIKey is sent as a bearer token on the handshake.
	APIKey string
	// DialTimeout bounds the handshake when the caller's context carries no
	// deadline. Zero means the default.
	DialTimeout time.Duration
}

// Connect implements Adapter.
func (a *WSAdapter) Connect(ctx context.Context, cfg Config, cb Callbacks) (Conn, error) {
	if a.URL == "" {
		return nil, fmt.Errorf("upstream URL must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("upstream model must not be empty")
	}

	headers := make(http.Header)
	if a.APIKey != "" {
		headers.Set("Authorization", "Bearer "+a.APIKey)
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := a.DialTimeout
		if timeout <= 0 {
			timeout = defaultDialTimeout
		}
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	conn, resp, err := dialer.DialContext(dialCtx, a.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("upstream dial failed: %w", err)
	}

	c := &wsConn{conn: conn, cb: cb}

	if err := c.sendJSON(sessionUpdateFrame{
		Type: "session.update",
		Session: sessionPayload{
			Model:        cfg.Model,
			Instructions: cfg.Instructions,
		},
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session.update: %w", err)
	}

	if cb.OnOpen != nil {
		cb.OnOpen(c)
	}

	go c.readLoop()
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	cb   Callbacks

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *wsConn) SendTurn(text string) error {
	return c.sendJSON(itemCreateFrame{
		Type: "conversation.item.create",
		Item: messageItem{
			Type:    "message",
			Role:    "user",
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
}

func (c *wsConn) SendControl(kind ControlKind) error {
	return c.sendJSON(controlFrame{Type: string(kind)})
}

func (c *wsConn) SendAudio(pcm []byte) error {
	return c.sendJSON(audioAppendFrame{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *wsConn) sendJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("upstream connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
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

func (c *wsConn) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.dispatchClose(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, decodeErr := decodeServerFrame(data)
		if decodeErr != nil {
			if c.cb.OnError != nil {
				c.cb.OnError(decodeErr)
			}
			continue
		}
		if msg == nil {
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(*msg)
		}
	}
}

// dispatchClose maps the read error to an OnClose invocation. Codes 1000
// and 1001 are normal; everything else (including transport errors after a
// local Close, which surface as 1000 via errClosed below) is abnormal.
func (c *wsConn) dispatchClose(err error) {
	code := websocket.CloseAbnormalClosure
	reason := err.Error()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		code = websocket.CloseNormalClosure
		reason = "upstream closed"
	} else if ce, ok := err.(*websocket.CloseError); ok {
		code = ce.Code
		reason = ce.Text
	}

	if c.closed.Load() {
		// Locally initiated close; report as normal regardless of how the
		// transport surfaced it.
		code = websocket.CloseNormalClosure
		reason = "closed"
	}

	if c.cb.OnClose != nil {
		c.cb.OnClose(code, reason)
	}
}

// IsNormalClose reports whether a close code indicates an expected
// termination.
func IsNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}
