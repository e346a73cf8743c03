package dto

import (
	"time"

	"zero-entropy-be/pkg/store"
)

type CreateSessionRequest struct {
	SessionId string `json:"session_id" validate:"omitempty,max=128"`
}

type SessionResponse struct {
	SessionId         string                   `json:"session_id"`
	Phase             store.Phase              `json:"phase"`
	TurnCount         int                      `json:"turn_count"`
	LastConsolidation int                      `json:"last_consolidation"`
	Summary           string                   `json:"summary,omitempty"`
	Window            []store.ConversationTurn `json:"window,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

type GetAllSessionsResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

type MemoryStatsResponse struct {
	ActiveSessions         int              `json:"active_sessions"`
	StoredChunks           int64            `json:"stored_chunks"`
	StoredDocuments        int64            `json:"stored_documents"`
	ChunksByType           map[string]int64 `json:"chunks_by_type"`
	WindowCapacity         int              `json:"window_capacity"`
	ConsolidationThreshold int              `json:"consolidation_threshold"`
	SummaryMaxLength       int              `json:"summary_max_length"`
	LongTermMemory         bool             `json:"long_term_memory"`
	Persistence            string           `json:"persistence"`
}
