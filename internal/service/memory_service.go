package service

import (
	"context"
	"fmt"
	"strings"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/store"
	"zero-entropy-be/pkg/utils"
)

// memoryPromoter moves what falls out of a session window into the knowledge
// index, tagged with the session id, so it stays retrievable for that session.
type memoryPromoter struct {
	queue        IPublisherService
	chunkSize    int
	chunkOverlap int
	logger       logger.ILogger
}

var _ memory.Promoter = (*memoryPromoter)(nil)

func NewMemoryPromoter(queue IPublisherService, chunkSize, chunkOverlap int, log logger.ILogger) memory.Promoter {
	return &memoryPromoter{
		queue:        queue,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       log,
	}
}

// SummaryDocumentID is fixed per session so every new summary replaces the last.
func SummaryDocumentID(sessionId string) string {
	return "summary_" + sessionId
}

func (mp *memoryPromoter) Promote(ctx context.Context, sessionId string, evicted []store.ConversationTurn, summary string) error {
	var lines []string
	for _, t := range evicted {
		if t.Role == store.RoleSystem || strings.TrimSpace(t.Content) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}

	if len(lines) > 0 {
		transcript := strings.Join(lines, "\n")
		job := dto.IngestJob{
			DocumentId: store.DocumentID(transcript, map[string]interface{}{"session_id": sessionId}),
			Chunks:     utils.SplitText(transcript, mp.chunkSize, mp.chunkOverlap),
			Source:     "conversation",
			Kind:       store.KindConversationMemory,
			SessionId:  sessionId,
		}
		if err := mp.queue.PublishIngest(ctx, job); err != nil {
			return fmt.Errorf("queue evicted turns of %s: %w", sessionId, err)
		}
	}

	if strings.TrimSpace(summary) != "" {
		job := dto.IngestJob{
			DocumentId: SummaryDocumentID(sessionId),
			Chunks:     []string{summary},
			Source:     "session summary",
			Kind:       store.KindSessionSummary,
			SessionId:  sessionId,
		}
		if err := mp.queue.PublishIngest(ctx, job); err != nil {
			return fmt.Errorf("queue summary of %s: %w", sessionId, err)
		}
	}

	mp.logger.Debug("MEMORY_PROMOTER", "Promoted evicted turns", map[string]interface{}{
		"session_id": sessionId,
		"turns":      len(lines),
	})
	return nil
}
