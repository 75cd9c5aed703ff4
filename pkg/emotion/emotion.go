// Package emotion classifies the tone of a finished AI response. The
// classifier runs off the audio-relay path and always degrades to a
// neutral result rather than surfacing an error to the conversation.
package emotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Result is one classification outcome.
type Result struct {
	Emotion string
	Reason  string
}

// Neutral is the fallback used whenever classification fails or times out.
var Neutral = Result{Emotion: "neutral"}

// knownEmotions is the closed label set the model must pick from.
var knownEmotions = map[string]bool{
	"neutral":    true,
	"happy":      true,
	"excited":    true,
	"curious":    true,
	"empathetic": true,
	"amused":     true,
	"concerned":  true,
	"surprised":  true,
}

// Classifier labels a response transcript with an emotion.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

const (
	defaultTimeout = 2500 * time.Millisecond

	classifyPrompt = `Classify the emotional tone of the following assistant reply.
Answer with exactly one line in the form "emotion|reason" where emotion is
one of: neutral, happy, excited, curious, empathetic, amused, concerned,
surprised. The reason is a short phrase.

Reply:
%s`
)

// GenAIClassifier calls a Gemini model to label the transcript.
type GenAIClassifier struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAIClassifier builds a classifier against the given model.
func NewGenAIClassifier(ctx context.Context, apiKey, model string) (*GenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("emotion: API key must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("emotion: create client: %w", err)
	}
	return &GenAIClassifier{client: client, model: model, timeout: defaultTimeout}, nil
}

// Classify implements Classifier. Any failure, including a malformed model
// answer, returns Neutral alongside the error; callers log and move on.
func (g *GenAIClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Neutral, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: fmt.Sprintf(classifyPrompt, text)}},
		Role:  "user",
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Neutral, fmt.Errorf("emotion: generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Neutral, fmt.Errorf("emotion: empty response")
	}

	var answer strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			answer.WriteString(part.Text)
		}
	}
	return parseResult(answer.String())
}

// parseResult decodes an "emotion|reason" line, rejecting labels outside
// the known set.
func parseResult(answer string) (Result, error) {
	line := strings.TrimSpace(answer)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	label, reason, _ := strings.Cut(line, "|")
	label = strings.ToLower(strings.TrimSpace(label))
	reason = strings.TrimSpace(reason)

	if !knownEmotions[label] {
		return Neutral, fmt.Errorf("emotion: unknown label %q", label)
	}
	return Result{Emotion: label, Reason: reason}, nil
}
