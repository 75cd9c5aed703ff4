package upstream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Wire frames for the provider's realtime websocket protocol. Outbound
// frames are written as type-tagged JSON; inbound frames are dispatched on
// their "type" field.

type sessionUpdateFrame struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	Model        string `json:"model"`
	Instructions string `json:"instructions,omitempty"`
}

type audioAppendFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type controlFrame struct {
	Type string `json:"type"`
}

type itemCreateFrame struct {
	Type string      `json:"type"`
	Item messageItem `json:"item"`
}

type messageItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverFrame struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

type serverError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// decodeServerFrame maps a provider text frame to a Message. A nil Message
// with nil error means the frame is recognized but carries nothing the
// session needs (for example acknowledgements).
func decodeServerFrame(data []byte) (*Message, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode upstream frame: %w", err)
	}
	typ := strings.TrimSpace(frame.Type)
	if typ == "" {
		return nil, fmt.Errorf("upstream frame missing type")
	}

	switch typ {
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(frame.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode upstream audio delta: %w", err)
		}
		return &Message{Type: MessageAudioDelta, Audio: audio}, nil
	case "response.audio_transcript.delta":
		return &Message{Type: MessageOutputTranscriptDelta, Text: frame.Delta}, nil
	case "conversation.item.input_audio_transcription.completed":
		return &Message{Type: MessageInputTranscription, Text: frame.Transcript}, nil
	case "input_audio_buffer.speech_started":
		return &Message{Type: MessageSpeechStarted}, nil
	case "response.done":
		return &Message{Type: MessageTurnComplete}, nil
	case "error":
		msg := Message{Type: MessageError}
		if frame.Error != nil {
			msg.Text = frame.Error.Message
			msg.Code = frame.Error.Code
		}
		return &msg, nil
	default:
		// Unknown frame types are ignored; the provider adds new ones
		// without version negotiation.
		return nil, nil
	}
}
