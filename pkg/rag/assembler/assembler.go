// Package assembler turns ranked knowledge, recent turns and a running summary
// into the message sequence sent to the model, within a token budget.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"
)

const module = "ASSEMBLER"

type Request struct {
	Query        string
	Fragments    []store.RankedFragment
	RecentTurns  []store.ConversationTurn
	Summary      string
	SystemPrompt string
	Budget       int
}

type Metadata struct {
	FragmentsUsed         int     `json:"fragments_used"`
	TotalConfidence       float64 `json:"total_confidence"`
	ConsolidationOccurred bool    `json:"consolidation_occurred"`
	TokenCost             int     `json:"token_cost"`
	DroppedFragments      int     `json:"dropped_fragments"`
	DroppedTurns          int     `json:"dropped_turns"`
	SummaryDropped        bool    `json:"summary_dropped"`
	OverBudget            bool    `json:"over_budget"`
}

type Result struct {
	Messages []llm.Message `json:"messages"`
	Metadata Metadata      `json:"metadata"`
	// Fragments are the ones that made it into Messages, most confident first.
	Fragments []store.RankedFragment `json:"-"`
}

// Assembler is stateless apart from its collaborators.
type Assembler struct {
	counter TokenCounter
	logger  logger.ILogger
}

func NewAssembler(counter TokenCounter, log logger.ILogger) *Assembler {
	if counter == nil {
		counter = NewHeuristicCounter()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Assembler{counter: counter, logger: log}
}

// plan records what is still included while trimming.
type plan struct {
	fragments    []store.RankedFragment
	turns        []store.ConversationTurn
	summary      string
	systemPrompt string
}

// Build orders the context as base prompt, summary, knowledge, recent turns and
// finally the query. When the sequence is over budget it drops, in order: the
// least confident fragments, the oldest turns before the last exchange, the
// summary and the base prompt. The query and the last exchange always stay.
//
// If the query alone exceeds the budget the result holds just the query and
// the error wraps rag.ErrCapacityExceeded.
func (a *Assembler) Build(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("assembler: empty query: %w", rag.ErrInput)
	}

	query := llm.Message{Role: string(store.RoleUser), Content: req.Query}
	if cost := a.counter.Count([]llm.Message{query}); cost > req.Budget {
		a.logger.Warn(module, "Query alone exceeds token budget", map[string]interface{}{
			"cost":   cost,
			"budget": req.Budget,
		})
		return &Result{
				Messages: []llm.Message{query},
				Metadata: Metadata{
					TokenCost:        cost,
					DroppedFragments: len(req.Fragments),
					DroppedTurns:     len(req.RecentTurns),
					SummaryDropped:   req.Summary != "",
					OverBudget:       true,
				},
			}, fmt.Errorf("assembler: query needs %d tokens, budget is %d: %w",
				cost, req.Budget, rag.ErrCapacityExceeded)
	}

	fragments := make([]store.RankedFragment, len(req.Fragments))
	copy(fragments, req.Fragments)
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Confidence > fragments[j].Confidence
	})

	p := plan{
		fragments:    fragments,
		turns:        req.RecentTurns,
		summary:      req.Summary,
		systemPrompt: req.SystemPrompt,
	}
	protected := store.LastExchange(req.RecentTurns)

	var messages []llm.Message
	var cost int
	overBudget := false
	for {
		messages = p.render(query)
		cost = a.counter.Count(messages)
		if cost <= req.Budget {
			break
		}

		switch {
		case len(p.fragments) > 0:
			p.fragments = p.fragments[:len(p.fragments)-1]
		case len(req.RecentTurns)-len(p.turns) < protected:
			p.turns = p.turns[1:]
		case p.summary != "":
			p.summary = ""
		case p.systemPrompt != "":
			p.systemPrompt = ""
		default:
			overBudget = true
		}
		if overBudget {
			a.logger.Warn(module, "Mandatory context exceeds token budget", map[string]interface{}{
				"cost":   cost,
				"budget": req.Budget,
			})
			break
		}
	}

	meta := Metadata{
		FragmentsUsed:    len(p.fragments),
		TokenCost:        cost,
		DroppedFragments: len(fragments) - len(p.fragments),
		DroppedTurns:     len(req.RecentTurns) - len(p.turns),
		SummaryDropped:   req.Summary != "" && p.summary == "",
		OverBudget:       overBudget,
	}
	for _, f := range p.fragments {
		meta.TotalConfidence += f.Confidence
	}

	return &Result{Messages: messages, Metadata: meta, Fragments: p.fragments}, nil
}

func (p plan) render(query llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(p.turns)+4)

	if p.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: string(store.RoleSystem), Content: p.systemPrompt})
	}
	if p.summary != "" {
		messages = append(messages, llm.Message{
			Role:    string(store.RoleSystem),
			Content: "Summary of the earlier conversation:\n" + p.summary,
		})
	}
	if len(p.fragments) > 0 {
		messages = append(messages, llm.Message{Role: string(store.RoleSystem), Content: KnowledgeBlock(p.fragments)})
	}
	for _, t := range p.turns {
		messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return append(messages, query)
}

// KnowledgeBlock renders fragments with their origin and confidence.
func KnowledgeBlock(fragments []store.RankedFragment) string {
	var b strings.Builder
	b.WriteString("Relevant knowledge, most confident first:")
	for i, f := range fragments {
		fmt.Fprintf(&b, "\n\n[%d] (source: %s, confidence: %.2f)\n%s", i+1, f.Label(), f.Confidence, f.Content)
	}
	return b.String()
}
