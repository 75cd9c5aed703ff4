package realtime

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
)

// Client frame kinds.
const (
	frameAudioAppend    = "input_audio_buffer.append"
	frameAudioCommit    = "input_audio_buffer.commit"
	frameResponseCreate = "response.create"
	frameItemCreate     = "conversation.item.create"
	frameClientReady    = "client.ready"
	frameResponseCancel = "response.cancel"
)

// clientFrame is the inbound envelope. Fields beyond Type are only read
// for the kinds that use them.
type clientFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Router decodes inbound client frames and dispatches them to session
// handlers. Malformed or unknown frames are logged and ignored; nothing a
// client sends can terminate its session through this path.
type Router struct {
	logger *slog.Logger
}

// NewRouter builds a router. A nil logger uses the default.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// Dispatch routes one raw frame to the session.
func (r *Router) Dispatch(s *Session, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		r.logger.Warn("malformed client frame", "session_id", s.ID, "error", err)
		return
	}

	switch frame.Type {
	case frameAudioAppend:
		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			r.logger.Warn("malformed audio payload", "session_id", s.ID, "error", err)
			return
		}
		s.HandleAudioAppend(pcm)
	case frameAudioCommit:
		s.HandleCommit()
	case frameResponseCreate:
		s.HandleResponseCreate()
	case frameItemCreate:
		if frame.Text == "" {
			r.logger.Warn("text turn frame without text", "session_id", s.ID)
			return
		}
		s.HandleTextTurn(frame.Text)
	case frameClientReady:
		s.HandleClientReady()
	case frameResponseCancel:
		s.HandleCancel()
	default:
		r.logger.Debug("unknown client frame kind", "session_id", s.ID, "type", frame.Type)
	}
}
