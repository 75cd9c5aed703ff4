package emotion

import "testing"

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    Result
		wantErr bool
	}{
		{
			name:   "plain",
			answer: "happy|the reply is upbeat",
			want:   Result{Emotion: "happy", Reason: "the reply is upbeat"},
		},
		{
			name:   "uppercase label",
			answer: "CURIOUS|asks a follow-up",
			want:   Result{Emotion: "curious", Reason: "asks a follow-up"},
		},
		{
			name:   "surrounding whitespace",
			answer: "  empathetic | gentle encouragement  ",
			want:   Result{Emotion: "empathetic", Reason: "gentle encouragement"},
		},
		{
			name:   "extra lines ignored",
			answer: "amused|playful joke\nsome trailing commentary",
			want:   Result{Emotion: "amused", Reason: "playful joke"},
		},
		{
			name:   "missing reason",
			answer: "neutral",
			want:   Result{Emotion: "neutral"},
		},
		{
			name:    "unknown label",
			answer:  "ecstatic|very very happy",
			want:    Neutral,
			wantErr: true,
		},
		{
			name:    "empty answer",
			answer:  "",
			want:    Neutral,
			wantErr: true,
		},
		{
			name:    "prose instead of label",
			answer:  "The assistant sounds happy here.",
			want:    Neutral,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.answer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseResult(%q) error = %v, wantErr %v", tt.answer, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseResult(%q) = %+v, want %+v", tt.answer, got, tt.want)
			}
		})
	}
}
