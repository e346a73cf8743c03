package search

import (
	"context"
	"time"

	"zero-entropy-be/pkg/store"
)

// Chunk is one embedded piece of a knowledge document or conversation memory.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Tags       store.Tags
	Embedding  []float32
	CreatedAt  time.Time
}

type ScoredChunk struct {
	Chunk
	Similarity float64
}

// Filter narrows a search. Zero values match everything.
type Filter struct {
	Kind      string
	SessionID string
}

type Stats struct {
	Chunks    int64            `json:"chunks"`
	Documents int64            `json:"documents"`
	ByKind    map[string]int64 `json:"by_kind"`
}

// VectorIndex stores chunks and finds the nearest ones to a query vector.
// Similarity is cosine similarity, highest first.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredChunk, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
}
