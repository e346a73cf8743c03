package service

import (
	"context"
	"fmt"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"
)

const sessionModule = "SESSION"

// SessionStore is the memory store plus cache eviction for cross-instance sync.
type SessionStore interface {
	memory.Store
	Evict(sessionId string) bool
}

type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	GetAll(ctx context.Context) (*dto.GetAllSessionsResponse, error)
	Show(ctx context.Context, sessionId string) (*dto.SessionResponse, error)
	Delete(ctx context.Context, sessionId string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (*dto.MemoryStatsResponse, error)
	HandleEvent(ctx context.Context, event events.Event) error
}

type SessionConfig struct {
	Memory         memory.Config
	LongTermMemory bool
	Persistence    string
}

type sessionService struct {
	sessions SessionStore
	index    search.VectorIndex
	events   events.Publisher
	origin   string
	cfg      SessionConfig
	logger   logger.ILogger
}

func NewSessionService(
	sessions SessionStore,
	index search.VectorIndex,
	publisher events.Publisher,
	origin string,
	cfg SessionConfig,
	log logger.ILogger,
) ISessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &sessionService{
		sessions: sessions,
		index:    index,
		events:   publisher,
		origin:   origin,
		cfg:      cfg,
		logger:   log,
	}
}

func (ss *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	sess, _, err := ss.sessions.GetOrCreate(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess.State(), false), nil
}

func (ss *sessionService) GetAll(ctx context.Context) (*dto.GetAllSessionsResponse, error) {
	states := ss.sessions.List()
	res := &dto.GetAllSessionsResponse{
		Sessions: make([]*dto.SessionResponse, 0, len(states)),
		Total:    len(states),
	}
	for _, st := range states {
		res.Sessions = append(res.Sessions, toSessionResponse(st, false))
	}
	return res, nil
}

// Show returns a settled snapshot, running a due consolidation first.
func (ss *sessionService) Show(ctx context.Context, sessionId string) (*dto.SessionResponse, error) {
	sess, err := ss.sessions.Get(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(snap, true), nil
}

func (ss *sessionService) Delete(ctx context.Context, sessionId string) error {
	if err := ss.sessions.Delete(ctx, sessionId); err != nil {
		return err
	}

	if ss.index != nil {
		if _, err := ss.index.DeleteDocument(ctx, SummaryDocumentID(sessionId)); err != nil {
			ss.logger.Warn(sessionModule, "Failed to drop session summary from index", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}

	if err := ss.events.Publish(ctx, events.New(events.TypeSessionDeleted, map[string]interface{}{
		"session_id": sessionId,
	})); err != nil {
		ss.logger.Warn(sessionModule, "Failed to publish session deletion", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}
	return nil
}

func (ss *sessionService) Clear(ctx context.Context) error {
	return ss.sessions.Clear(ctx)
}

func (ss *sessionService) Stats(ctx context.Context) (*dto.MemoryStatsResponse, error) {
	res := &dto.MemoryStatsResponse{
		ActiveSessions:         ss.sessions.Len(),
		ChunksByType:           map[string]int64{},
		WindowCapacity:         ss.cfg.Memory.WindowCapacity,
		ConsolidationThreshold: ss.cfg.Memory.ConsolidationThreshold,
		SummaryMaxLength:       ss.cfg.Memory.SummaryMaxLength,
		LongTermMemory:         ss.cfg.LongTermMemory,
		Persistence:            ss.cfg.Persistence,
	}
	if ss.index == nil {
		return res, nil
	}

	stats, err := ss.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w: %v", rag.ErrCollaboratorUnavailable, err)
	}
	res.StoredChunks = stats.Chunks
	res.StoredDocuments = stats.Documents
	res.ChunksByType = stats.ByKind
	return res, nil
}

// HandleEvent evicts the local copy of a session another instance changed.
// The next access reloads it from the shared persister.
func (ss *sessionService) HandleEvent(ctx context.Context, event events.Event) error {
	if events.Origin(event) == ss.origin {
		return nil
	}
	sessionId := events.SessionID(event)
	if sessionId == "" {
		return nil
	}

	switch event.EventType() {
	case events.TypeSessionConsolidated, events.TypeSessionDeleted:
		if ss.sessions.Evict(sessionId) {
			ss.logger.Info(sessionModule, "Evicted session changed elsewhere", map[string]interface{}{
				"session_id": sessionId,
				"event":      event.EventType(),
				"origin":     events.Origin(event),
			})
		}
	}
	return nil
}

func toSessionResponse(st store.SessionState, withWindow bool) *dto.SessionResponse {
	res := &dto.SessionResponse{
		SessionId:         st.SessionID,
		Phase:             st.Phase,
		TurnCount:         st.TurnCount,
		LastConsolidation: st.LastConsolidation,
		Summary:           st.Summary,
		CreatedAt:         st.CreatedAt,
		UpdatedAt:         st.UpdatedAt,
	}
	if withWindow {
		res.Window = st.Window
	}
	return res
}
