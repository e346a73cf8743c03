package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zero-entropy-be/pkg/store"

	"github.com/cenkalti/backoff/v5"
)

const summarySeparator = " | "

var errEmptySummary = errors.New("summarizer returned an empty summary")

// summarize asks the summarizer to fold evicted turns into the previous
// summary. Each attempt has its own timeout and attempts are bounded; when
// they are exhausted the deterministic fallback is used instead.
func (s *Session) summarize(ctx context.Context, previous string, evicted []store.ConversationTurn) string {
	fallback := func() string {
		return FallbackSummary(previous, evicted, s.cfg.FallbackParts, s.cfg.FallbackExcerpt, s.cfg.SummaryMaxLength)
	}
	if s.deps.Summarizer == nil {
		return fallback()
	}

	input := evicted
	if previous != "" {
		input = append([]store.ConversationTurn{{
			Role:    store.RoleSystem,
			Content: "Summary so far: " + previous,
		}}, evicted...)
	}

	summary, err := backoff.Retry(ctx, func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.SummarizeTimeout)
		defer cancel()

		out, err := s.deps.Summarizer.Summarize(attemptCtx, input, s.cfg.SummaryMaxLength)
		if err != nil {
			return "", err
		}
		if out = strings.TrimSpace(out); out == "" {
			return "", errEmptySummary
		}
		return out, nil
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.SummarizeAttempts)),
	)
	if err != nil {
		s.deps.Logger.Warn(module, "Summarizer unavailable, using fallback summary", map[string]interface{}{
			"session_id": s.state.SessionID,
			"evicted":    len(evicted),
			"error":      err.Error(),
		})
		return fallback()
	}

	return truncateRunes(summary, s.cfg.SummaryMaxLength)
}

// FallbackSummary merges the previous summary with one short line per evicted
// turn and keeps only the newest parts. The result is non-empty whenever
// evicted is non-empty.
func FallbackSummary(previous string, evicted []store.ConversationTurn, parts, excerpt, maxLength int) string {
	var items []string
	if previous != "" {
		items = strings.Split(previous, summarySeparator)
	}

	for _, t := range evicted {
		text := truncateRunes(strings.Join(strings.Fields(t.Content), " "), excerpt)
		if text == "" {
			continue
		}
		switch t.Role {
		case store.RoleUser:
			items = append(items, "User asked: "+text)
		case store.RoleAssistant:
			items = append(items, "Assistant answered: "+text)
		default:
			items = append(items, "Note: "+text)
		}
	}

	if parts > 0 && len(items) > parts {
		items = items[len(items)-parts:]
	}
	if len(items) == 0 && len(evicted) > 0 {
		items = append(items, fmt.Sprintf("%d earlier turns without text", len(evicted)))
	}

	return truncateRunes(strings.Join(items, summarySeparator), maxLength)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
