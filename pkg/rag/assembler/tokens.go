package assembler

import (
	"unicode/utf8"

	"zero-entropy-be/pkg/llm"
)

// TokenCounter reports what a message sequence costs against the model's
// context window. Implementations must be additive: adding a message never
// lowers the count.
type TokenCounter interface {
	Count(messages []llm.Message) int
}

// HeuristicCounter estimates chat-format token usage without a tokenizer:
// a fixed overhead per message, roughly four characters per token, and a
// constant for the primed assistant reply.
type HeuristicCounter struct {
	CharsPerToken int
	PerMessage    int
	ReplyPrimer   int
}

func NewHeuristicCounter() HeuristicCounter {
	return HeuristicCounter{CharsPerToken: 4, PerMessage: 4, ReplyPrimer: 2}
}

func (h HeuristicCounter) Count(messages []llm.Message) int {
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}

	total := h.ReplyPrimer
	for _, m := range messages {
		total += h.PerMessage
		total += ceilDiv(utf8.RuneCountInString(m.Role), cpt)
		total += ceilDiv(utf8.RuneCountInString(m.Content), cpt)
	}
	return total
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
