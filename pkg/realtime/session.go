package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verbly-ai/verbly/pkg/emotion"
	"github.com/verbly-ai/verbly/pkg/prompt"
	"github.com/verbly-ai/verbly/pkg/upstream"
	"github.com/verbly-ai/verbly/pkg/usage"
)

// ClientSender delivers outbound frames to one client connection.
// Implementations must be safe for concurrent use; Send after Close must
// return an error rather than panic.
type ClientSender interface {
	Send(Event) error
	Close() error
}

// State is a session's lifecycle phase.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Close reasons reported in session.terminated frames and usage records.
const (
	ReasonClientClose     = "client_close"
	ReasonUpstreamClosed  = "upstream_closed"
	ReasonUpstreamDropped = "upstream_disconnect"
	ReasonConnectFailed   = "upstream_connect_failed"
	ReasonIdleTimeout     = "idle_timeout"
	ReasonServerShutdown  = "server_shutdown"
)

// SessionParams are the immutable inputs for one session.
type SessionParams struct {
	ConversationID string
	PersonaID      string
	UserID         string
	Client         ClientSender
	Model          string
	Instructions   string
	// TargetScript overrides the registry default for this session's
	// transcript filter.
	TargetScript string
}

// Session is the aggregate root for one live voice conversation: one
// client connection, one upstream stream, the turn controller and the
// transcript aggregator. All mutable state is guarded by mu; upstream
// callbacks, client frames, the greeting timer and the reaper all
// serialize through it.
type Session struct {
	ID             string
	ConversationID string
	PersonaID      string
	UserID         string

	mu          sync.Mutex
	state       State
	client      ClientSender
	upstream    upstream.Conn
	isConnected bool

	turns      *TurnController
	transcript *TranscriptAggregator

	hasReceivedFirstResponse bool
	greetingSent             bool
	greetingRetryCount       int
	greetingTimer            *time.Timer
	greetingTimeout          time.Duration

	startedAt      time.Time
	lastActivityAt time.Time
	usageRecorded  bool

	model        string
	instructions string

	classifier emotion.Classifier
	recorder   usage.Recorder
	metrics    Metrics
	logger     *slog.Logger
	onRemove   func(id string)

	now func() time.Time
}

func newSession(params SessionParams, cfg Config, onRemove func(id string)) *Session {
	id := uuid.NewString()
	script := params.TargetScript
	if script == "" {
		script = cfg.TargetScript
	}
	now := time.Now()
	return &Session{
		ID:             id,
		ConversationID: params.ConversationID,
		PersonaID:      params.PersonaID,
		UserID:         params.UserID,

		state:      StateConnecting,
		client:     params.Client,
		turns:      NewTurnController(),
		transcript: NewTranscriptAggregator(script),

		greetingTimeout: cfg.GreetingTimeout,
		startedAt:       now,
		lastActivityAt:  now,

		model:        params.Model,
		instructions: params.Instructions,

		classifier: cfg.Classifier,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("session_id", id, "conversation_id", params.ConversationID),
		onRemove:   onRemove,

		now: time.Now,
	}
}

// connectUpstream dials the provider. Called once by the registry, after
// the session is already admitted and stored.
func (s *Session) connectUpstream(ctx context.Context, adapter upstream.Adapter) error {
	conn, err := adapter.Connect(ctx, upstream.Config{
		Model:        s.model,
		Instructions: s.instructions,
	}, upstream.Callbacks{
		OnOpen:    s.onUpstreamOpen,
		OnMessage: s.onUpstreamMessage,
		OnError:   s.onUpstreamError,
		OnClose:   s.onUpstreamClose,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	if s.upstream == nil {
		s.upstream = conn
	}
	s.mu.Unlock()
	return nil
}

// --- upstream callbacks (provider read goroutine) ---

// onUpstreamOpen stores the conn before anything else; handlers that run
// inside the open window (greeting, client.ready) must be able to send on
// it already.
func (s *Session) onUpstreamOpen(conn upstream.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return
	}
	s.state = StateActive
	s.upstream = conn
	s.isConnected = true
	s.touchLocked()

	s.sendLocked(&SessionReadyEvent{SessionID: s.ID})
	s.sendLocked(&SessionConfiguredEvent{
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Model:          s.model,
	})

	// The greeting waits for client.ready; the timer guarantees the
	// conversation starts even if that signal never arrives.
	s.greetingTimer = time.AfterFunc(s.greetingTimeout, s.onGreetingTimeout)
	s.logger.Info("session active", "model", s.model)
}

func (s *Session) onUpstreamMessage(msg upstream.Message) {
	switch msg.Type {
	case upstream.MessageAudioDelta:
		s.handleUpstreamAudio(msg.Audio)
	case upstream.MessageOutputTranscriptDelta:
		s.handleOutputFragment(msg.Text)
	case upstream.MessageInputTranscription:
		s.handleInputTranscription(msg.Text)
	case upstream.MessageSpeechStarted:
		s.handleSpeechStarted()
	case upstream.MessageTurnComplete:
		s.handleTurnComplete()
	case upstream.MessageError:
		s.logger.Warn("upstream error frame", "code", msg.Code, "message", msg.Text)
		s.mu.Lock()
		s.sendLocked(&ErrorEvent{Message: msg.Text, Recoverable: true})
		s.mu.Unlock()
	}
}

func (s *Session) handleUpstreamAudio(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()
	// While a barge-in window is open, audio is dropped here: the provider
	// may still push chunks generated before it saw the cancel.
	if !s.turns.AudioAdmissible() {
		return
	}
	s.metrics.AudioBytes("out", len(data))
	s.sendLocked(&AudioDeltaEvent{Data: data, TurnSeq: s.turns.TurnSeq()})
}

func (s *Session) handleOutputFragment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()
	if text == "" {
		return
	}
	if seq, resumed := s.turns.BeginFragment(); resumed {
		s.sendLocked(&ResponseReadyEvent{TurnSeq: seq})
	}
	if s.transcript.AppendAI(text) {
		s.sendLocked(&AITranscriptionDeltaEvent{Text: text})
	} else {
		s.logger.Debug("withheld non-target-language fragment", "len", len(text))
	}
}

func (s *Session) handleInputTranscription(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()
	s.transcript.AppendUser(text)
	s.sendLocked(&UserTranscriptionEvent{Text: text})
}

func (s *Session) handleSpeechStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()
	s.sendLocked(&UserSpeakingStartedEvent{})
}

func (s *Session) handleTurnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()

	seq, resumed := s.turns.Complete()
	s.metrics.TurnCompleted()
	text := s.transcript.FlushTurn()

	s.sendLocked(&ResponseDoneEvent{TurnSeq: seq})
	if resumed {
		s.sendLocked(&ResponseReadyEvent{TurnSeq: seq})
	}

	if text != "" {
		s.hasReceivedFirstResponse = true
		s.dispatchEmotion(text)
		return
	}
	if !s.hasReceivedFirstResponse && s.greetingSent {
		s.retryGreetingLocked()
	}
}

// dispatchEmotion classifies the finished turn off the relay path and
// delivers ai.transcription.done when the result arrives. Failures default
// to neutral and are only logged.
func (s *Session) dispatchEmotion(text string) {
	go func() {
		result := emotion.Neutral
		if s.classifier != nil {
			r, err := s.classifier.Classify(context.Background(), text)
			if err != nil {
				s.logger.Debug("emotion classification failed", "error", err)
			} else {
				result = r
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sendLocked(&AITranscriptionDoneEvent{
			Text:          text,
			Emotion:       result.Emotion,
			EmotionReason: result.Reason,
		})
	}()
}

func (s *Session) onUpstreamError(err error) {
	s.logger.Warn("upstream read error", "error", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(&ErrorEvent{Message: "upstream protocol error", Recoverable: true})
}

func (s *Session) onUpstreamClose(code int, reason string) {
	if upstream.IsNormalClose(code) {
		s.Close(ReasonUpstreamClosed)
		return
	}
	s.logger.Warn("upstream disconnected", "code", code, "reason", reason)
	s.mu.Lock()
	defer s.mu.Unlock()
	// No reconnect: the client must start a new session.
	s.sendLocked(&ErrorEvent{Message: "upstream connection lost", Recoverable: false})
	s.closeLocked(ReasonUpstreamDropped)
}

// --- client frame handlers (router goroutine) ---

// HandleAudioAppend forwards a chunk of user audio upstream.
func (s *Session) HandleAudioAppend(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.upstream == nil {
		return
	}
	s.touchLocked()
	s.metrics.AudioBytes("in", len(pcm))
	if err := s.upstream.SendAudio(pcm); err != nil {
		s.logger.Warn("forward audio failed", "error", err)
		s.sendLocked(&ErrorEvent{Message: "failed to forward audio", Recoverable: true})
	}
}

// HandleCommit signals that the buffered input audio is a complete turn.
func (s *Session) HandleCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.sendControlLocked(upstream.ControlCommitInput)
}

// HandleResponseCreate asks the provider to respond to committed input.
func (s *Session) HandleResponseCreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.sendControlLocked(upstream.ControlCreateResponse)
}

// HandleTextTurn forwards client text as a complete user turn.
func (s *Session) HandleTextTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.sendTurnLocked(text)
}

// HandleClientReady triggers the bootstrap greeting. Skipped if a response
// was already received or the greeting already went out.
func (s *Session) HandleClientReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.state != StateActive || s.greetingSent || s.hasReceivedFirstResponse {
		return
	}
	s.sendGreetingLocked()
}

// HandleCancel is the barge-in path: mark the current turn cancelled,
// tell the provider to stop generating, flush the partial transcript so
// it is not silently lost, and open the audio suppression window. The
// window only covers chunks already in flight; the upstream cancel is
// what stops the stream.
func (s *Session) HandleCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.touchLocked()

	cancelled := s.turns.Cancel()
	s.metrics.BargeIn()
	s.sendControlLocked(upstream.ControlCancelResponse)

	if text := s.transcript.FlushTurn(); text != "" {
		s.sendLocked(&AITranscriptionDoneEvent{
			Text:        text,
			Emotion:     emotion.Neutral.Emotion,
			Interrupted: true,
		})
	}
	s.sendLocked(&ResponseInterruptedEvent{TurnSeq: cancelled})
	s.logger.Debug("barge-in", "cancelled_turn", cancelled)
}

// --- greeting bootstrap ---

func (s *Session) onGreetingTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.greetingSent || s.hasReceivedFirstResponse {
		return
	}
	s.logger.Debug("client.ready not received, bootstrapping greeting")
	s.sendGreetingLocked()
}

func (s *Session) sendGreetingLocked() {
	s.greetingSent = true
	if s.greetingTimer != nil {
		s.greetingTimer.Stop()
	}
	s.sendTurnLocked(prompt.Greeting(0))
}

// retryGreetingLocked fires after a turn completed with no content and no
// prior response. Capped; past the cap the session just waits for the user.
func (s *Session) retryGreetingLocked() {
	if s.greetingRetryCount >= prompt.MaxGreetingRetries {
		return
	}
	s.greetingRetryCount++
	s.logger.Debug("greeting produced no content, retrying", "attempt", s.greetingRetryCount)
	s.sendTurnLocked(prompt.Greeting(s.greetingRetryCount))
}

// --- send helpers ---

func (s *Session) sendTurnLocked(text string) {
	if s.state != StateActive || s.upstream == nil {
		return
	}
	if err := s.upstream.SendTurn(text); err != nil {
		s.logger.Warn("send turn failed", "error", err)
		s.sendLocked(&ErrorEvent{Message: "failed to send turn", Recoverable: true})
		return
	}
	if err := s.upstream.SendControl(upstream.ControlCreateResponse); err != nil {
		s.logger.Warn("send control failed", "error", err)
	}
}

func (s *Session) sendControlLocked(kind upstream.ControlKind) {
	if s.state != StateActive || s.upstream == nil {
		return
	}
	if err := s.upstream.SendControl(kind); err != nil {
		s.logger.Warn("send control failed", "kind", string(kind), "error", err)
		s.sendLocked(&ErrorEvent{Message: "failed to send control event", Recoverable: true})
	}
}

func (s *Session) sendLocked(ev Event) {
	if s.state == StateClosed {
		return
	}
	if err := s.client.Send(ev); err != nil {
		s.logger.Debug("client send failed", "event", ev.EventType(), "error", err)
	}
}

func (s *Session) touchLocked() {
	s.lastActivityAt = s.now()
}

// --- lifecycle ---

// Close tears the session down. Idempotent; every close path (client
// disconnect, upstream close, idle reaper, shutdown drain) funnels here,
// so usage is recorded exactly once.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *Session) closeLocked(reason string) {
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.state = StateClosing
	if s.greetingTimer != nil {
		s.greetingTimer.Stop()
	}

	if err := s.client.Send(&SessionTerminatedEvent{Reason: reason}); err != nil {
		s.logger.Debug("terminated frame not delivered", "error", err)
	}
	_ = s.client.Close()
	if s.upstream != nil {
		_ = s.upstream.Close()
	}
	s.isConnected = false

	duration := s.now().Sub(s.startedAt)
	if !s.usageRecorded {
		s.usageRecorded = true
		s.recordUsage(reason, duration)
	}

	s.metrics.SessionClosed(reason, duration)
	s.state = StateClosed
	s.logger.Info("session closed", "reason", reason, "duration_ms", duration.Milliseconds())

	if s.onRemove != nil {
		s.onRemove(s.ID)
	}
}

// recordUsage dispatches the summary fire-and-forget. Called once, under
// the lock, guarded by usageRecorded.
func (s *Session) recordUsage(reason string, duration time.Duration) {
	aiChars, userChars := s.transcript.Totals()
	summary := usage.Summary{
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		UserID:         s.UserID,
		StartedAt:      s.startedAt,
		Duration:       duration,
		Turns:          s.turns.TurnSeq(),
		AIChars:        aiChars,
		UserChars:      userChars,
		CloseReason:    reason,
	}
	recorder := s.recorder
	logger := s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.Record(ctx, summary); err != nil {
			logger.Warn("usage recording failed", "error", err)
		}
	}()
}

// --- read-only accessors ---

// State returns the lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the upstream stream is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnected
}

// LastActivity returns the most recent client or upstream activity.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// TurnSeq returns the current turn counter.
func (s *Session) TurnSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns.TurnSeq()
}
