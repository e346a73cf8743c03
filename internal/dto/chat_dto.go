package dto

import (
	"time"

	"zero-entropy-be/pkg/rag/assembler"
)

type ChatRequest struct {
	SessionId string `json:"session_id" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"required,max=32000"`
	UseRag    *bool  `json:"use_rag,omitempty"`
}

type SourceDTO struct {
	SourceId    string  `json:"source_id"`
	Label       string  `json:"label"`
	Kind        string  `json:"type,omitempty"`
	Similarity  float64 `json:"similarity"`
	Quality     float64 `json:"quality"`
	Confidence  float64 `json:"confidence"`
	Fingerprint string  `json:"fingerprint"`
}

type ChatResponse struct {
	SessionId  string             `json:"session_id"`
	Reply      string             `json:"reply"`
	Sources    []SourceDTO        `json:"sources"`
	Metadata   assembler.Metadata `json:"metadata"`
	TurnCount  int                `json:"turn_count"`
	NewSession bool               `json:"new_session"`
	CreatedAt  time.Time          `json:"created_at"`
}
