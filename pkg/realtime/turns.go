package realtime

// TurnController owns one session's turn counter and interruption flag.
// It is session-local state guarded by the session's lock; methods must be
// called with that lock held and need no locking of their own.
//
// turnSeq increments exactly once per upstream turn-complete event.
// cancelledTurnSeq marks the turn a barge-in cancelled (-1 = none).
// While interrupted, outbound audio is suppressed server-side until one of
// two clearing triggers fires: a turn boundary newer than the cancelled
// turn, or the first non-empty output fragment of the next response. Both
// triggers exist because the upstream pushes frames in no fixed order;
// whichever arrives first resumes audio.
type TurnController struct {
	turnSeq          uint64
	cancelledTurnSeq int64
	interrupted      bool
}

// NewTurnController returns a controller with no turns and no cancellation.
func NewTurnController() *TurnController {
	return &TurnController{cancelledTurnSeq: -1}
}

// TurnSeq returns the current turn counter.
func (t *TurnController) TurnSeq() uint64 { return t.turnSeq }

// CancelledTurnSeq returns the cancelled-turn marker, -1 when none.
func (t *TurnController) CancelledTurnSeq() int64 { return t.cancelledTurnSeq }

// Interrupted reports whether a barge-in window is open.
func (t *TurnController) Interrupted() bool { return t.interrupted }

// AudioAdmissible reports whether an outbound audio fragment may be
// forwarded to the client right now.
func (t *TurnController) AudioAdmissible() bool { return !t.interrupted }

// Complete records an upstream turn-complete event. It returns the new
// turn counter and whether this boundary closed a barge-in window (the
// caller then emits response.ready).
func (t *TurnController) Complete() (seq uint64, resumed bool) {
	t.turnSeq++
	if t.interrupted && int64(t.turnSeq) > t.cancelledTurnSeq {
		t.interrupted = false
		resumed = true
	}
	return t.turnSeq, resumed
}

// BeginFragment records the first non-empty output fragment of a response.
// If a barge-in window is open it closes immediately; waiting for the
// turn-complete boundary would drop the head of the new response's audio.
// The returned seq is the turn the fragment belongs to (the one the next
// Complete will number).
func (t *TurnController) BeginFragment() (seq uint64, resumed bool) {
	if t.interrupted {
		t.interrupted = false
		resumed = true
	}
	return t.turnSeq + 1, resumed
}

// Cancel records a client barge-in against the current turn. It returns
// the cancelled turn number. Calling Cancel with a window already open
// re-marks the current turn; the flag stays set.
func (t *TurnController) Cancel() uint64 {
	t.interrupted = true
	t.cancelledTurnSeq = int64(t.turnSeq)
	return t.turnSeq
}
