package realtime

import "testing"

func TestTranscriptAggregatorAccumulatesAndFlushes(t *testing.T) {
	a := NewTranscriptAggregator("Latin")

	if !a.AppendAI("Hello ") {
		t.Fatal("expected fragment accepted")
	}
	if !a.AppendAI("there!") {
		t.Fatal("expected fragment accepted")
	}
	if got := a.AIText(); got != "Hello there!" {
		t.Errorf("expected buffer %q, got %q", "Hello there!", got)
	}

	flushed := a.FlushTurn()
	if flushed != "Hello there!" {
		t.Errorf("expected flush %q, got %q", "Hello there!", flushed)
	}
	if a.AIText() != "" {
		t.Error("expected buffer reset after flush")
	}
}

func TestTranscriptAggregatorTotalsSurviveFlush(t *testing.T) {
	a := NewTranscriptAggregator("Latin")
	a.AppendAI("abcd")
	a.AppendUser("xy")
	a.FlushTurn()
	a.AppendAI("ef")

	ai, user := a.Totals()
	if ai != 6 {
		t.Errorf("expected 6 cumulative AI chars, got %d", ai)
	}
	if user != 2 {
		t.Errorf("expected 2 cumulative user chars, got %d", user)
	}
}

func TestTranscriptAggregatorFiltersForeignScript(t *testing.T) {
	a := NewTranscriptAggregator("Latin")

	tests := []struct {
		name     string
		fragment string
		want     bool
	}{
		{"plain latin", "How are you today?", true},
		{"punctuation only", "... !", true},
		{"cyrillic reasoning", "пользователь хочет поговорить", false},
		{"han reasoning", "用户想要问候", false},
		{"mostly latin with one foreign rune", "Hola, que tal с", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.AppendAI(tt.fragment); got != tt.want {
				t.Errorf("AppendAI(%q) = %v, want %v", tt.fragment, got, tt.want)
			}
		})
	}
}

func TestTranscriptAggregatorUnknownScriptDisablesFilter(t *testing.T) {
	a := NewTranscriptAggregator("")
	if !a.AppendAI("какой угодно текст") {
		t.Error("expected filter disabled with empty script name")
	}
}
