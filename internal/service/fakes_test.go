package service

import (
	"context"
	"errors"
	"sync"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"
)

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	history [][]llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, history)
	return f.reply, f.err
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func (f *fakeLLM) last() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[len(f.history)-1]
}

type fakeRetriever struct {
	hits    []store.RetrievalHit
	err     error
	calls   int
	filters []search.Filter
}

func (f *fakeRetriever) SearchAll(ctx context.Context, query string, k int, filters []search.Filter) ([]store.RetrievalHit, error) {
	f.calls++
	f.filters = filters
	return f.hits, f.err
}

type fixedScorer float64

func (s fixedScorer) Score(string) float64 { return float64(s) }

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(ctx context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType())
	}
	return out
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Generate(ctx context.Context, text, taskType string) (*embedding.EmbeddingResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0, 0}}}, nil
}

// memIndex is a tiny in-memory VectorIndex that returns everything matching the filter.
type memIndex struct {
	mu        sync.Mutex
	chunks    map[string]search.Chunk
	searchErr error
}

func newMemIndex() *memIndex {
	return &memIndex{chunks: map[string]search.Chunk{}}
}

func (m *memIndex) Upsert(ctx context.Context, chunks []search.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *memIndex) Search(ctx context.Context, v []float32, k int, f search.Filter) ([]search.ScoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []search.ScoredChunk
	for _, c := range m.chunks {
		if (f.Kind == "" || c.Tags.Kind == f.Kind) && (f.SessionID == "" || c.Tags.SessionID == f.SessionID) {
			out = append(out, search.ScoredChunk{Chunk: c, Similarity: 0.95})
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) DeleteDocument(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.chunks, key)
			n++
		}
	}
	return n, nil
}

func (m *memIndex) Stats(ctx context.Context) (search.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := search.Stats{ByKind: map[string]int64{}}
	docs := map[string]bool{}
	for _, c := range m.chunks {
		stats.Chunks++
		stats.ByKind[c.Tags.Kind]++
		docs[c.DocumentID] = true
	}
	stats.Documents = int64(len(docs))
	return stats, nil
}

func (m *memIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = map[string]search.Chunk{}
	return nil
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []dto.IngestJob
	err  error
}

func (q *captureQueue) PublishIngest(ctx context.Context, job dto.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

var errOffline = errors.New("offline")
