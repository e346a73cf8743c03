package service

import (
	"context"
	"errors"
	"testing"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/assembler"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	svc       IChatService
	store     *memory.CacheStore
	llm       *fakeLLM
	retriever *fakeRetriever
	events    *capturePublisher
}

func newChatFixture(t *testing.T, memCfg memory.Config, cfg ChatConfig) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:     memory.NewCacheStore(memCfg, memory.Deps{}),
		llm:       &fakeLLM{reply: "Channels pass values between goroutines."},
		retriever: &fakeRetriever{},
		events:    &capturePublisher{},
	}
	f.svc = NewChatService(
		f.store,
		f.retriever,
		ranker.NewRanker(ranker.DefaultConfig(), fixedScorer(0.9), nil),
		assembler.NewAssembler(nil, nil),
		f.llm,
		f.events,
		nil,
		cfg,
		logger.NewNopLogger(),
	)
	return f
}

func defaultChatConfig() ChatConfig {
	return ChatConfig{
		RagEnabled:     true,
		LongTermMemory: true,
		SearchK:        10,
		MaxResults:     5,
		TokenBudget:    4000,
		SystemPrompt:   "You are helpful.",
	}
}

func knowledgeHit(text, source string, similarity float64) store.RetrievalHit {
	return store.RetrievalHit{
		Content:    store.NewTextSpan(text),
		Similarity: similarity,
		SourceID:   source + "_0",
		Tags:       store.Tags{Source: source, Kind: store.KindKnowledge},
	}
}

func TestChat_FullTurn(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	f.retriever.hits = []store.RetrievalHit{
		knowledgeHit("Go channels synchronize goroutines.", "go-book", 0.95),
		knowledgeHit("Unrelated trivia.", "trivia", 0.1),
	}

	res, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: "  how do channels work?  "})

	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionId)
	assert.True(t, res.NewSession)
	assert.Equal(t, "Channels pass values between goroutines.", res.Reply)
	assert.Equal(t, 2, res.TurnCount)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "go-book", res.Sources[0].Label)
	assert.Equal(t, 1, res.Metadata.FragmentsUsed)

	prompt := f.llm.last()
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "You are helpful.", prompt[0].Content)
	assert.Contains(t, prompt[1].Content, "Go channels synchronize goroutines.")
	assert.Equal(t, "how do channels work?", prompt[len(prompt)-1].Content)

	sess, err := f.store.Get(context.Background(), res.SessionId)
	require.NoError(t, err)
	window := sess.State().Window
	require.Len(t, window, 2)
	assert.Equal(t, store.RoleUser, window[0].Role)
	assert.Equal(t, store.RoleAssistant, window[1].Role)
}

func TestChat_QueryIsNotRepeatedFromWindow(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	ctx := context.Background()

	first, err := f.svc.Chat(ctx, &dto.ChatRequest{Message: "first question"})
	require.NoError(t, err)
	_, err = f.svc.Chat(ctx, &dto.ChatRequest{SessionId: first.SessionId, Message: "second question"})
	require.NoError(t, err)

	var contents []string
	for _, m := range f.llm.last() {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{
		"You are helpful.",
		"first question",
		"Channels pass values between goroutines.",
		"second question",
	}, contents)
}

func TestChat_SearchesSessionMemory(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())

	res, err := f.svc.Chat(context.Background(), &dto.ChatRequest{SessionId: "s-42", Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "s-42", res.SessionId)
	require.Len(t, f.retriever.filters, 2)
	assert.Equal(t, store.KindKnowledge, f.retriever.filters[0].Kind)
	assert.Equal(t, store.KindConversationMemory, f.retriever.filters[1].Kind)
	assert.Equal(t, "s-42", f.retriever.filters[1].SessionID)
}

func TestChat_RetrievalFailureDegrades(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	f.retriever.err = errOffline

	res, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: "hello"})

	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 0, res.Metadata.FragmentsUsed)
}

func TestChat_RagCanBeTurnedOffPerRequest(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	off := false

	_, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: "hello", UseRag: &off})

	require.NoError(t, err)
	assert.Equal(t, 0, f.retriever.calls)
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())

	_, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: " \n "})

	assert.True(t, errors.Is(err, rag.ErrInput))
	assert.Equal(t, 0, f.store.Len())
}

func TestChat_ModelFailureKeepsUserTurn(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	f.llm.err = errOffline

	_, err := f.svc.Chat(context.Background(), &dto.ChatRequest{SessionId: "s1", Message: "hello"})

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
	sess, getErr := f.store.Get(context.Background(), "s1")
	require.NoError(t, getErr)
	assert.Equal(t, 1, sess.State().TurnCount)
}

func TestChat_EmptyModelReply(t *testing.T) {
	f := newChatFixture(t, memory.DefaultConfig(), defaultChatConfig())
	f.llm.reply = "   "

	_, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: "hello"})

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
}

func TestChat_BudgetTooSmall(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.TokenBudget = 3
	f := newChatFixture(t, memory.DefaultConfig(), cfg)

	_, err := f.svc.Chat(context.Background(), &dto.ChatRequest{Message: "a question that needs more than three tokens"})

	assert.True(t, errors.Is(err, rag.ErrCapacityExceeded))
	assert.Empty(t, f.llm.history)
}

func TestChat_ConsolidationPublishesEvent(t *testing.T) {
	memCfg := memory.DefaultConfig()
	memCfg.WindowCapacity = 2
	memCfg.ConsolidationThreshold = 4
	f := newChatFixture(t, memCfg, defaultChatConfig())
	ctx := context.Background()

	first, err := f.svc.Chat(ctx, &dto.ChatRequest{SessionId: "s1", Message: "one"})
	require.NoError(t, err)
	second, err := f.svc.Chat(ctx, &dto.ChatRequest{SessionId: "s1", Message: "two"})
	require.NoError(t, err)

	assert.False(t, first.Metadata.ConsolidationOccurred)
	assert.True(t, second.Metadata.ConsolidationOccurred)
	assert.Contains(t, f.events.types(), events.TypeSessionConsolidated)

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	state := sess.State()
	assert.LessOrEqual(t, len(state.Window), 2)
	assert.NotEmpty(t, state.Summary)
	assert.Equal(t, 4, state.TurnCount)
}
