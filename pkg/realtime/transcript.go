package realtime

import (
	"strings"
	"unicode"
)

// nonTargetShareThreshold is the fraction of letters that may belong to a
// script other than the target before a fragment is treated as model
// reasoning chatter and withheld.
const nonTargetShareThreshold = 0.5

// TranscriptAggregator accumulates streamed text fragments into per-turn
// buffers. Like TurnController it is guarded by the session's lock.
type TranscriptAggregator struct {
	aiBuffer   strings.Builder
	userBuffer strings.Builder

	// Cumulative character totals across the whole session, used for the
	// usage summary. Never reset.
	aiChars   int
	userChars int

	targetScript *unicode.RangeTable
}

// NewTranscriptAggregator returns an aggregator filtering for the given
// script name (for example "Latin", "Han", "Cyrillic"). An unknown or
// empty name disables the filter.
func NewTranscriptAggregator(scriptName string) *TranscriptAggregator {
	return &TranscriptAggregator{targetScript: unicode.Scripts[scriptName]}
}

// AppendAI adds a response fragment to the current turn's AI buffer. It
// returns false when the fragment was withheld by the language filter.
func (a *TranscriptAggregator) AppendAI(fragment string) bool {
	if !a.inTargetScript(fragment) {
		return false
	}
	a.aiBuffer.WriteString(fragment)
	a.aiChars += len(fragment)
	return true
}

// AppendUser records a completed user transcription.
func (a *TranscriptAggregator) AppendUser(text string) {
	a.userBuffer.WriteString(text)
	a.userChars += len(text)
}

// AIText returns the in-progress AI transcript.
func (a *TranscriptAggregator) AIText() string { return a.aiBuffer.String() }

// FlushTurn returns the accumulated AI transcript and clears both per-turn
// buffers. Called on turn completion and on barge-in.
func (a *TranscriptAggregator) FlushTurn() string {
	text := a.aiBuffer.String()
	a.aiBuffer.Reset()
	a.userBuffer.Reset()
	return text
}

// Totals returns the cumulative AI and user character counts.
func (a *TranscriptAggregator) Totals() (ai, user int) {
	return a.aiChars, a.userChars
}

// inTargetScript reports whether a fragment's letters are predominantly in
// the target script. Upstream models occasionally leak internal reasoning
// in another language; those fragments never reach the client or the
// emotion classifier.
func (a *TranscriptAggregator) inTargetScript(fragment string) bool {
	if a.targetScript == nil {
		return true
	}
	letters, foreign := 0, 0
	for _, r := range fragment {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(a.targetScript, r) {
			foreign++
		}
	}
	if letters == 0 {
		return true
	}
	return float64(foreign)/float64(letters) <= nonTargetShareThreshold
}
