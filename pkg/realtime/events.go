package realtime

// Event is the interface for all frames pushed to the client.
type Event interface {
	// EventType returns the frame type string for serialization.
	EventType() string
}

// SessionReadyEvent is emitted once the upstream stream is open.
type SessionReadyEvent struct {
	SessionID string `json:"session_id"`
}

func (e *SessionReadyEvent) EventType() string { return "session.ready" }

// SessionConfiguredEvent is emitted after SessionReadyEvent with the
// resolved session parameters.
type SessionConfiguredEvent struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
}

func (e *SessionConfiguredEvent) EventType() string { return "session.configured" }

// AudioDeltaEvent carries a chunk of synthesized response audio, stamped
// with the turn counter current at send time.
type AudioDeltaEvent struct {
	Data    []byte `json:"data"`
	TurnSeq uint64 `json:"turn_seq"`
}

func (e *AudioDeltaEvent) EventType() string { return "audio.delta" }

// ResponseDoneEvent marks a provider-signaled turn boundary.
type ResponseDoneEvent struct {
	TurnSeq uint64 `json:"turn_seq"`
}

func (e *ResponseDoneEvent) EventType() string { return "response.done" }

// ResponseReadyEvent signals that a barge-in window has closed and audio
// for the given turn will flow again.
type ResponseReadyEvent struct {
	TurnSeq uint64 `json:"turn_seq"`
}

func (e *ResponseReadyEvent) EventType() string { return "response.ready" }

// ResponseInterruptedEvent acknowledges a client barge-in.
type ResponseInterruptedEvent struct {
	TurnSeq uint64 `json:"turn_seq"`
}

func (e *ResponseInterruptedEvent) EventType() string { return "response.interrupted" }

// UserSpeakingStartedEvent is forwarded when the provider detects the user
// starting to speak.
type UserSpeakingStartedEvent struct{}

func (e *UserSpeakingStartedEvent) EventType() string { return "user.speaking.started" }

// UserTranscriptionEvent carries a completed transcription of user speech.
type UserTranscriptionEvent struct {
	Text string `json:"text"`
}

func (e *UserTranscriptionEvent) EventType() string { return "user.transcription" }

// AITranscriptionDeltaEvent carries a fragment of the in-progress response
// transcript.
type AITranscriptionDeltaEvent struct {
	Text string `json:"text"`
}

func (e *AITranscriptionDeltaEvent) EventType() string { return "ai.transcription.delta" }

// AITranscriptionDoneEvent carries the full transcript of a finished (or
// interrupted) response turn, with the classified emotion.
type AITranscriptionDoneEvent struct {
	Text          string `json:"text"`
	Emotion       string `json:"emotion"`
	EmotionReason string `json:"emotion_reason,omitempty"`
	Interrupted   bool   `json:"interrupted,omitempty"`
}

func (e *AITranscriptionDoneEvent) EventType() string { return "ai.transcription.done" }

// ErrorEvent carries an in-session error pushed to the client.
type ErrorEvent struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SessionTerminatedEvent is the last frame a session sends.
type SessionTerminatedEvent struct {
	Reason string `json:"reason"`
}

func (e *SessionTerminatedEvent) EventType() string { return "session.terminated" }
