package llm

import (
	"context"
	"fmt"
	"strings"

	"zero-entropy-be/pkg/store"
)

const summaryPrompt = `Summarize the conversation below for your own later reference.
Keep names, decisions, open questions and facts the user stated about themselves.
Answer with the summary only, in at most %d characters.

%s`

// Summarizer condenses conversation turns with a chat model.
type Summarizer struct {
	provider LLMProvider
}

func NewSummarizer(provider LLMProvider) *Summarizer {
	return &Summarizer{provider: provider}
}

func (s *Summarizer) Summarize(ctx context.Context, turns []store.ConversationTurn, maxLength int) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}

	out, err := s.provider.Generate(ctx,
		fmt.Sprintf(summaryPrompt, maxLength, transcript.String()),
		WithTemperature(0.2),
		WithMaxTokens(maxLength/3+16),
	)
	if err != nil {
		return "", fmt.Errorf("summarize %d turns: %w", len(turns), err)
	}
	return strings.TrimSpace(out), nil
}
