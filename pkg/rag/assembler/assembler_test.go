package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// charCounter charges one token per byte of content.
type charCounter struct{}

func (charCounter) Count(messages []llm.Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}

func fragment(content, source string, confidence float64) store.RankedFragment {
	return store.RankedFragment{Content: content, SourceID: source, Confidence: confidence}
}

func turn(role store.Role, content string) store.ConversationTurn {
	return store.ConversationTurn{Role: role, Content: content}
}

func contents(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestBuild_Ordering(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)

	res, err := a.Build(context.Background(), Request{
		Query:        "what now?",
		Fragments:    []store.RankedFragment{fragment("fact one", "doc-1", 0.8), fragment("fact two", "doc-2", 0.9)},
		RecentTurns:  []store.ConversationTurn{turn(store.RoleUser, "hi"), turn(store.RoleAssistant, "hello")},
		Summary:      "user likes go",
		SystemPrompt: "be brief",
		Budget:       10000,
	})

	require.NoError(t, err)
	require.Len(t, res.Messages, 6)
	assert.Equal(t, "system", res.Messages[0].Role)
	assert.Equal(t, "be brief", res.Messages[0].Content)
	assert.Contains(t, res.Messages[1].Content, "user likes go")
	assert.Equal(t, "system", res.Messages[2].Role)
	knowledge := res.Messages[2].Content
	assert.Less(t, strings.Index(knowledge, "fact two"), strings.Index(knowledge, "fact one"))
	assert.Contains(t, knowledge, "source: doc-2, confidence: 0.90")
	assert.Equal(t, []string{"hi", "hello", "what now?"}, contents(res.Messages[3:]))
	assert.Equal(t, "user", res.Messages[5].Role)

	assert.Equal(t, 2, res.Metadata.FragmentsUsed)
	assert.InDelta(t, 1.7, res.Metadata.TotalConfidence, 1e-9)
	assert.False(t, res.Metadata.OverBudget)
}

func TestBuild_QueryAloneOverBudget(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)

	res, err := a.Build(context.Background(), Request{
		Query:       "hello world",
		Fragments:   []store.RankedFragment{fragment("fact", "doc", 0.9)},
		RecentTurns: []store.ConversationTurn{turn(store.RoleUser, "hi")},
		Budget:      5,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrCapacityExceeded))
	require.NotNil(t, res)
	assert.Equal(t, []string{"hello world"}, contents(res.Messages))
	assert.Equal(t, "user", res.Messages[0].Role)
}

func TestBuild_DropsLeastConfidentFragmentsFirst(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)
	best := fragment(strings.Repeat("a", 40), "best", 0.9)
	worst := fragment(strings.Repeat("b", 40), "worst", 0.75)
	budget := charCounter{}.Count([]llm.Message{
		{Content: KnowledgeBlock([]store.RankedFragment{best})},
		{Content: "q"},
	})

	res, err := a.Build(context.Background(), Request{
		Query:     "q",
		Fragments: []store.RankedFragment{worst, best},
		Budget:    budget,
	})

	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Contains(t, res.Messages[0].Content, "source: best")
	assert.NotContains(t, res.Messages[0].Content, "source: worst")
	assert.Equal(t, 1, res.Metadata.FragmentsUsed)
	assert.Equal(t, 1, res.Metadata.DroppedFragments)
	assert.Equal(t, []store.RankedFragment{best}, res.Fragments)
	assert.LessOrEqual(t, res.Metadata.TokenCost, budget)
}

func TestBuild_DropsOldestTurnsButKeepsLastExchange(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)
	turns := []store.ConversationTurn{
		turn(store.RoleUser, "first question"),
		turn(store.RoleAssistant, "first answer"),
		turn(store.RoleUser, "second question"),
		turn(store.RoleAssistant, "second answer"),
	}
	budget := len("second question") + len("second answer") + len("third?")

	res, err := a.Build(context.Background(), Request{
		Query:       "third?",
		Fragments:   []store.RankedFragment{fragment("some fact", "doc", 0.9)},
		RecentTurns: turns,
		Budget:      budget,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"second question", "second answer", "third?"}, contents(res.Messages))
	assert.Equal(t, 2, res.Metadata.DroppedTurns)
	assert.Equal(t, 1, res.Metadata.DroppedFragments)
	assert.Equal(t, 0, res.Metadata.FragmentsUsed)
}

func TestBuild_MandatoryContextOverBudget(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)

	res, err := a.Build(context.Background(), Request{
		Query: "short",
		RecentTurns: []store.ConversationTurn{
			turn(store.RoleUser, strings.Repeat("u", 100)),
			turn(store.RoleAssistant, strings.Repeat("a", 100)),
		},
		Summary:      "a summary",
		SystemPrompt: "a prompt",
		Budget:       50,
	})

	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "short", res.Messages[2].Content)
	assert.True(t, res.Metadata.OverBudget)
	assert.True(t, res.Metadata.SummaryDropped)
}

func TestBuild_EmptyQuery(t *testing.T) {
	a := NewAssembler(charCounter{}, nil)

	_, err := a.Build(context.Background(), Request{Query: "  ", Budget: 100})

	assert.True(t, errors.Is(err, rag.ErrInput))
}

func TestBuild_Deterministic(t *testing.T) {
	a := NewAssembler(nil, nil)
	req := Request{
		Query:       "explain caching",
		Fragments:   []store.RankedFragment{fragment("cache one", "a", 0.8), fragment("cache two", "b", 0.8)},
		RecentTurns: []store.ConversationTurn{turn(store.RoleUser, "hey")},
		Budget:      60,
	}

	first, err := a.Build(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHeuristicCounter(t *testing.T) {
	c := NewHeuristicCounter()

	assert.Equal(t, 2, c.Count(nil))
	assert.Equal(t, 8, c.Count([]llm.Message{{Role: "user", Content: "abcd"}}))
	assert.Equal(t, 9, c.Count([]llm.Message{{Role: "user", Content: "abcde"}}))
}
