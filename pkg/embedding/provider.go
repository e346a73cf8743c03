package embedding

import (
	"context"
	"fmt"
)

const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// EmbeddingProvider defines the interface for generating text embeddings
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error)
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}

type Params struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewProvider(p Params) (EmbeddingProvider, error) {
	switch p.Provider {
	case "ollama":
		return NewOllamaProvider(p.BaseURL, p.Model), nil
	case "gemini":
		if p.APIKey == "" {
			return nil, fmt.Errorf("gemini embeddings need GOOGLE_GEMINI_API_KEY")
		}
		return NewGeminiProvider(p.APIKey, p.Model), nil
	case "openai":
		return NewOpenAIProvider(p.APIKey, p.BaseURL, p.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", p.Provider)
	}
}
