package dto

import "zero-entropy-be/pkg/rag/quality"

type AddKnowledgeRequest struct {
	Content  string                 `json:"content" validate:"required"`
	Source   string                 `json:"source" validate:"omitempty,max=256"`
	Category string                 `json:"category" validate:"omitempty,max=128"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Async    bool                   `json:"async"`
}

type AddKnowledgeResponse struct {
	DocumentId     string `json:"document_id"`
	ChunksIndexed  int    `json:"chunks_indexed"`
	ChunksRejected int    `json:"chunks_rejected"`
	Queued         bool   `json:"queued"`
}

type AddKnowledgeBatchRequest struct {
	Documents []AddKnowledgeRequest `json:"documents" validate:"required,min=1,max=100,dive"`
}

type AddKnowledgeBatchResponse struct {
	Documents []AddKnowledgeResponse `json:"documents"`
	Failed    []BatchFailureDTO      `json:"failed,omitempty"`
}

type BatchFailureDTO struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type SearchKnowledgeRequest struct {
	Query      string `json:"query" validate:"required"`
	MaxResults int    `json:"max_results" validate:"omitempty,min=1,max=50"`
	Type       string `json:"type" validate:"omitempty,oneof=knowledge conversation_memory session_summary"`
	SessionId  string `json:"session_id" validate:"omitempty,max=128"`
}

type SearchKnowledgeResponse struct {
	Query   string      `json:"query"`
	Results []SourceDTO `json:"results"`
	Content []string    `json:"content"`
}

type DeleteKnowledgeResponse struct {
	DocumentId    string `json:"document_id"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

type AnalyzeTextRequest struct {
	Text string `json:"text" validate:"required"`
}

type AnalyzeTextResponse struct {
	Score       float64         `json:"score"`
	Entropy     float64         `json:"entropy"`
	Status      string          `json:"status"`
	Metrics     quality.Metrics `json:"metrics"`
	Suggestions []string        `json:"suggestions"`
}

// IngestJob is the payload of the knowledge ingestion topic.
type IngestJob struct {
	DocumentId string                 `json:"document_id"`
	Chunks     []string               `json:"chunks"`
	Source     string                 `json:"source,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Kind       string                 `json:"type"`
	SessionId  string                 `json:"session_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
