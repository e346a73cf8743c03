package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/assembler"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const chatModule = "CHAT"

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
}

// Retriever finds raw hits for a query across several filters.
type Retriever interface {
	SearchAll(ctx context.Context, query string, k int, filters []search.Filter) ([]store.RetrievalHit, error)
}

// ChatNotifier pushes finished turns to other listeners of the same session.
type ChatNotifier interface {
	NotifySession(sessionId string, eventType string, data interface{})
}

type ChatConfig struct {
	RagEnabled     bool
	LongTermMemory bool
	SearchK        int
	MaxResults     int
	TokenBudget    int
	SystemPrompt   string
}

type chatService struct {
	sessions  memory.Store
	retriever Retriever
	ranker    *ranker.Ranker
	assembler *assembler.Assembler
	llm       llm.LLMProvider
	events    events.Publisher
	notifier  ChatNotifier
	cfg       ChatConfig
	logger    logger.ILogger
	tracer    trace.Tracer
}

func NewChatService(
	sessions memory.Store,
	retriever Retriever,
	rk *ranker.Ranker,
	asm *assembler.Assembler,
	llmProvider llm.LLMProvider,
	publisher events.Publisher,
	notifier ChatNotifier,
	cfg ChatConfig,
	log logger.ILogger,
) IChatService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &chatService{
		sessions:  sessions,
		retriever: retriever,
		ranker:    rk,
		assembler: asm,
		llm:       llmProvider,
		events:    publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer("zero-entropy-be/chat"),
	}
}

// Chat runs one user turn: append, retrieve, rank, assemble, generate,
// append the reply and consolidate if due. Turns of one session never interleave.
func (cs *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	query := strings.TrimSpace(req.Message)
	if query == "" {
		return nil, fmt.Errorf("chat message is empty: %w", rag.ErrInput)
	}

	ctx, span := cs.tracer.Start(ctx, "chat.turn")
	defer span.End()

	sess, created, err := cs.sessions.GetOrCreate(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sess.ID()), attribute.Bool("session.created", created))

	useRag := cs.cfg.RagEnabled
	if req.UseRag != nil {
		useRag = useRag && *req.UseRag
	}

	var res *dto.ChatResponse
	err = cs.sessions.WithLock(ctx, sess.ID(), func(sess *memory.Session) error {
		var turnErr error
		res, turnErr = cs.turn(ctx, sess, query, useRag)
		return turnErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.NewSession = created

	if cs.notifier != nil {
		cs.notifier.NotifySession(res.SessionId, "chat.reply", res)
	}
	return res, nil
}

func (cs *chatService) turn(ctx context.Context, sess *memory.Session, query string, useRag bool) (*dto.ChatResponse, error) {
	sessionId := sess.ID()
	consolidatedAt := sess.State().LastConsolidation

	if err := sess.Append(ctx, store.NewTurn(store.RoleUser, query)); err != nil {
		return nil, err
	}

	var ranked []store.RankedFragment
	if useRag {
		ranked = cs.retrieve(ctx, sessionId, query)
	}

	window, summary, err := sess.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	// The query goes in as its own message.
	if n := len(window); n > 0 && window[n-1].Role == store.RoleUser && window[n-1].Content == query {
		window = window[:n-1]
	}

	actx, span := cs.tracer.Start(ctx, "chat.assemble")
	built, err := cs.assembler.Build(actx, assembler.Request{
		Query:        query,
		Fragments:    ranked,
		RecentTurns:  window,
		Summary:      summary,
		SystemPrompt: cs.cfg.SystemPrompt,
		Budget:       cs.cfg.TokenBudget,
	})
	span.End()
	if err != nil {
		cs.logger.Error(chatModule, "Context assembly failed", map[string]interface{}{
			"session_id": sessionId,
			"stage":      "assemble",
			"budget":     cs.cfg.TokenBudget,
			"error":      err.Error(),
		})
		return nil, err
	}

	gctx, span := cs.tracer.Start(ctx, "chat.generate")
	span.SetAttributes(attribute.Int("prompt.messages", len(built.Messages)), attribute.Int("prompt.tokens", built.Metadata.TokenCost))
	reply, err := cs.llm.Chat(gctx, built.Messages)
	span.End()
	if err == nil && strings.TrimSpace(reply) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		cs.logger.Error(chatModule, "Language model call failed", map[string]interface{}{
			"session_id": sessionId,
			"stage":      "generate",
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("generate reply: %w: %v", rag.ErrCollaboratorUnavailable, err)
	}

	if err := sess.Append(ctx, store.NewTurn(store.RoleAssistant, reply)); err != nil {
		return nil, err
	}

	cctx, span := cs.tracer.Start(ctx, "chat.consolidate")
	if _, err := sess.MaybeConsolidate(cctx); err != nil {
		cs.logger.Warn(chatModule, "Consolidation deferred", map[string]interface{}{
			"session_id": sessionId,
			"stage":      "consolidate",
			"error":      err.Error(),
		})
	}
	span.End()

	state := sess.State()
	meta := built.Metadata
	meta.ConsolidationOccurred = state.LastConsolidation != consolidatedAt
	if meta.ConsolidationOccurred {
		cs.publish(ctx, events.New(events.TypeSessionConsolidated, map[string]interface{}{
			"session_id": sessionId,
			"turn_count": state.TurnCount,
		}))
	}

	sources := make([]dto.SourceDTO, 0, len(built.Fragments))
	for _, f := range built.Fragments {
		sources = append(sources, toSourceDTO(f))
	}

	cs.logger.Info(chatModule, "Turn complete", map[string]interface{}{
		"session_id":    sessionId,
		"fragments":     meta.FragmentsUsed,
		"token_cost":    meta.TokenCost,
		"consolidated":  meta.ConsolidationOccurred,
		"window_length": len(state.Window),
	})

	return &dto.ChatResponse{
		SessionId: sessionId,
		Reply:     reply,
		Sources:   sources,
		Metadata:  meta,
		TurnCount: state.TurnCount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// retrieve never fails the turn. Search errors degrade to an empty set.
func (cs *chatService) retrieve(ctx context.Context, sessionId, query string) []store.RankedFragment {
	ctx, span := cs.tracer.Start(ctx, "chat.retrieve")
	defer span.End()

	filters := []search.Filter{{Kind: store.KindKnowledge}}
	if cs.cfg.LongTermMemory {
		filters = append(filters, search.Filter{Kind: store.KindConversationMemory, SessionID: sessionId})
	}

	hits, err := cs.retriever.SearchAll(ctx, query, cs.cfg.SearchK, filters)
	if err != nil {
		span.RecordError(err)
		cs.logger.Warn(chatModule, "Retrieval unavailable, answering without knowledge", map[string]interface{}{
			"session_id": sessionId,
			"stage":      "retrieve",
			"error":      err.Error(),
		})
		return nil
	}

	ranked := cs.ranker.Rank(query, hits, cs.cfg.MaxResults)
	span.SetAttributes(attribute.Int("hits", len(hits)), attribute.Int("ranked", len(ranked)))
	return ranked
}

func (cs *chatService) publish(ctx context.Context, event events.Event) {
	if err := cs.events.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		cs.logger.Warn(chatModule, "Failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
