package search

import (
	"context"
	"errors"
	"testing"

	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Generate(ctx context.Context, text, taskType string) (*embedding.EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0}}}, nil
}

type fakeIndex struct {
	results    []ScoredChunk
	lastFilter Filter
	lastK      int
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []Chunk) error { return nil }
func (f *fakeIndex) Search(ctx context.Context, v []float32, k int, filter Filter) ([]ScoredChunk, error) {
	f.lastFilter, f.lastK = filter, k
	return f.results, nil
}
func (f *fakeIndex) DeleteDocument(ctx context.Context, id string) (int64, error) { return 0, nil }
func (f *fakeIndex) Stats(ctx context.Context) (Stats, error)                     { return Stats{}, nil }
func (f *fakeIndex) Clear(ctx context.Context) error                              { return nil }

func TestSearcher_ConvertsHits(t *testing.T) {
	idx := &fakeIndex{results: []ScoredChunk{
		{Chunk: Chunk{ID: "c1", DocumentID: "d1", Content: "golang channels", Tags: store.Tags{Source: "book"}}, Similarity: 0.9},
		{Chunk: Chunk{ID: "c2", DocumentID: "d2", Content: "unrelated"}, Similarity: -0.2},
	}}
	s := NewSearcher(fakeEmbedder{}, idx, Config{}, nil)

	hits, err := s.Search(context.Background(), "channels", 5)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "golang channels", hits[0].Content.Text)
	assert.Equal(t, 0.9, hits[0].Similarity)
	assert.Equal(t, "d1", hits[0].Tags.DocumentID)
	assert.Equal(t, "book", hits[0].Tags.Source)
	assert.Equal(t, 0.0, hits[1].Similarity)
	assert.Equal(t, 5, idx.lastK)
}

func TestSearcher_KeywordBoost(t *testing.T) {
	idx := &fakeIndex{results: []ScoredChunk{
		{Chunk: Chunk{ID: "c1", Content: "go channels explained"}, Similarity: 0.5},
	}}
	s := NewSearcher(fakeEmbedder{}, idx, Config{KeywordBoost: 0.3}, nil)

	hits, err := s.Search(context.Background(), "channels goroutines", 3)

	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.7+0.5*0.3, hits[0].Similarity, 1e-9)
}

func TestSearcher_EmbeddingFailure(t *testing.T) {
	s := NewSearcher(fakeEmbedder{err: errors.New("offline")}, &fakeIndex{}, Config{}, nil)

	_, err := s.Search(context.Background(), "q", 3)

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
}

func TestSearcher_FilterAndZeroK(t *testing.T) {
	idx := &fakeIndex{}
	s := NewSearcher(fakeEmbedder{}, idx, Config{Filter: Filter{Kind: store.KindKnowledge}}, nil)

	hits, err := s.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, store.KindKnowledge, idx.lastFilter.Kind)
}

type splitIndex struct {
	fakeIndex
	byKind map[string][]ScoredChunk
	fail   map[string]bool
}

func (f *splitIndex) Search(ctx context.Context, v []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if f.fail[filter.Kind] {
		return nil, errors.New("index down")
	}
	return f.byKind[filter.Kind], nil
}

func TestSearcher_SearchAllMergesFilters(t *testing.T) {
	idx := &splitIndex{byKind: map[string][]ScoredChunk{
		store.KindKnowledge:          {{Chunk: Chunk{ID: "k1", Content: "fact"}, Similarity: 0.8}},
		store.KindConversationMemory: {{Chunk: Chunk{ID: "m1", Content: "memory"}, Similarity: 0.6}},
	}}
	s := NewSearcher(fakeEmbedder{}, idx, Config{}, nil)

	hits, err := s.SearchAll(context.Background(), "q", 3, []Filter{
		{Kind: store.KindKnowledge},
		{Kind: store.KindConversationMemory, SessionID: "s1"},
	})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "k1", hits[0].SourceID)
	assert.Equal(t, "m1", hits[1].SourceID)
}

func TestSearcher_SearchAllToleratesPartialFailure(t *testing.T) {
	idx := &splitIndex{
		byKind: map[string][]ScoredChunk{store.KindKnowledge: {{Chunk: Chunk{ID: "k1", Content: "fact"}, Similarity: 0.8}}},
		fail:   map[string]bool{store.KindConversationMemory: true},
	}
	s := NewSearcher(fakeEmbedder{}, idx, Config{}, nil)

	hits, err := s.SearchAll(context.Background(), "q", 3, []Filter{{Kind: store.KindKnowledge}, {Kind: store.KindConversationMemory}})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.SearchAll(context.Background(), "q", 3, []Filter{{Kind: store.KindConversationMemory}})
	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
}

// orderedIndex fails the memory search first and only then answers the
// knowledge search, reporting whether its context was still live.
type orderedIndex struct {
	fakeIndex
	memoryFailed chan struct{}
}

func (f *orderedIndex) Search(ctx context.Context, v []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if filter.Kind == store.KindConversationMemory {
		defer close(f.memoryFailed)
		return nil, errors.New("index down")
	}
	<-f.memoryFailed
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []ScoredChunk{{Chunk: Chunk{ID: "k1", Content: "fact"}, Similarity: 0.8}}, nil
}

func TestSearcher_SearchAllFailureDoesNotCancelSiblings(t *testing.T) {
	idx := &orderedIndex{memoryFailed: make(chan struct{})}
	s := NewSearcher(fakeEmbedder{}, idx, Config{}, nil)

	hits, err := s.SearchAll(context.Background(), "q", 3, []Filter{
		{Kind: store.KindKnowledge},
		{Kind: store.KindConversationMemory},
	})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "k1", hits[0].SourceID)
}
