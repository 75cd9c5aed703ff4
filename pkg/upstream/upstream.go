// Package upstream wraps a duplex streaming connection to the
// conversational-AI provider. One Conn belongs to exactly one session for
// its whole lifetime; there is no reconnect or resume.
package upstream

import "context"

// ControlKind identifies an out-of-band control event sent upstream.
type ControlKind string

const (
	// ControlCommitInput signals that the buffered input audio forms a
	// complete user turn.
	ControlCommitInput ControlKind = "input_audio_buffer.commit"
	// ControlCreateResponse asks the provider to start generating a
	// response for the committed input.
	ControlCreateResponse ControlKind = "response.create"
	// ControlCancelResponse tells the provider to stop generating the
	// in-progress response after a barge-in. Server-side audio suppression
	// only covers chunks already in flight; this is what actually stops
	// the stream.
	ControlCancelResponse ControlKind = "response.cancel"
)

// MessageType identifies a provider push message.
type MessageType string

const (
	// MessageAudioDelta carries a chunk of synthesized response audio.
	MessageAudioDelta MessageType = "audio_delta"
	// MessageOutputTranscriptDelta carries a fragment of the response
	// transcript.
	MessageOutputTranscriptDelta MessageType = "output_transcript_delta"
	// MessageInputTranscription carries a completed transcription of user
	// speech.
	MessageInputTranscription MessageType = "input_transcription"
	// MessageSpeechStarted signals that the provider detected the user
	// starting to speak.
	MessageSpeechStarted MessageType = "speech_started"
	// MessageTurnComplete marks the provider-signaled turn boundary.
	MessageTurnComplete MessageType = "turn_complete"
	// MessageError carries a non-fatal provider error.
	MessageError MessageType = "error"
)

// Message is a decoded provider push message.
type Message struct {
	Type MessageType

	// Audio is set for MessageAudioDelta.
	Audio []byte
	// Text is set for transcript and error messages.
	Text string
	// Code is set for MessageError when the provider supplies one.
	Code string
}

// Callbacks receive connection lifecycle and push events. OnOpen carries
// the live Conn so the receiver can send on it before Connect returns.
// All callbacks are invoked from the connection's read goroutine;
// implementations must not block it.
type Callbacks struct {
	OnOpen    func(Conn)
	OnMessage func(Message)
	OnError   func(error)
	OnClose   func(code int, reason string)
}

// Config describes one session's upstream stream.
type Config struct {
	Model        string
	Instructions string
}

// Conn is a live duplex stream to the provider.
type Conn interface {
	// SendTurn forwards text as a complete user turn. Used both for real
	// user input and for synthetic system turns.
	SendTurn(text string) error

	// SendControl sends an out-of-band control event.
	SendControl(kind ControlKind) error

	// SendAudio forwards a chunk of user audio.
	SendAudio(pcm []byte) error

	// Close tears the stream down. Safe to call more than once.
	Close() error
}

// Adapter dials provider streams.
type Adapter interface {
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Conn, error)
}
