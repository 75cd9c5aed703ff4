package upstream

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestDecodeServerFrame(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})

	tests := []struct {
		name string
		raw  string
		want *Message
	}{
		{
			name: "audio delta",
			raw:  `{"type":"response.audio.delta","delta":"` + audio + `"}`,
			want: &Message{Type: MessageAudioDelta, Audio: []byte{1, 2, 3}},
		},
		{
			name: "output transcript delta",
			raw:  `{"type":"response.audio_transcript.delta","delta":"Bonjour"}`,
			want: &Message{Type: MessageOutputTranscriptDelta, Text: "Bonjour"},
		},
		{
			name: "input transcription",
			raw:  `{"type":"conversation.item.input_audio_transcription.completed","transcript":"salut"}`,
			want: &Message{Type: MessageInputTranscription, Text: "salut"},
		},
		{
			name: "speech started",
			raw:  `{"type":"input_audio_buffer.speech_started"}`,
			want: &Message{Type: MessageSpeechStarted},
		},
		{
			name: "turn complete",
			raw:  `{"type":"response.done"}`,
			want: &Message{Type: MessageTurnComplete},
		},
		{
			name: "error with detail",
			raw:  `{"type":"error","error":{"code":"rate_limited","message":"slow down"}}`,
			want: &Message{Type: MessageError, Text: "slow down", Code: "rate_limited"},
		},
		{
			name: "error without detail",
			raw:  `{"type":"error"}`,
			want: &Message{Type: MessageError},
		},
		{
			name: "unknown type ignored",
			raw:  `{"type":"session.updated"}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeServerFrame([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decodeServerFrame: %v", err)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got == nil {
				return
			}
			if got.Type != tt.want.Type || got.Text != tt.want.Text || got.Code != tt.want.Code {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if !bytes.Equal(got.Audio, tt.want.Audio) {
				t.Errorf("audio mismatch: got %v, want %v", got.Audio, tt.want.Audio)
			}
		})
	}
}

func TestDecodeServerFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{oops`},
		{"missing type", `{"delta":"abc"}`},
		{"bad audio base64", `{"type":"response.audio.delta","delta":"%%%"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeServerFrame([]byte(tt.raw)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestIsNormalClose(t *testing.T) {
	if !IsNormalClose(1000) || !IsNormalClose(1001) {
		t.Error("expected 1000 and 1001 treated as normal closure")
	}
	if IsNormalClose(1006) || IsNormalClose(1011) {
		t.Error("expected abnormal codes rejected")
	}
}
