package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/quality"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type knowledgeFixture struct {
	svc      IKnowledgeService
	index    *memIndex
	embedder *fakeEmbedder
	queue    *captureQueue
	events   *capturePublisher
}

func newKnowledgeFixture(t *testing.T, cfg KnowledgeConfig) *knowledgeFixture {
	t.Helper()
	f := &knowledgeFixture{
		index:    newMemIndex(),
		embedder: &fakeEmbedder{},
		queue:    &captureQueue{},
		events:   &capturePublisher{},
	}
	searcher := search.NewSearcher(f.embedder, f.index, search.Config{}, nil)
	f.svc = NewKnowledgeService(
		f.index,
		f.embedder,
		searcher,
		ranker.NewRanker(ranker.DefaultConfig(), fixedScorer(0.9), nil),
		quality.NewScorer(),
		f.queue,
		f.events,
		cfg,
		logger.NewNopLogger(),
	)
	return f
}

func defaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{ChunkSize: 1000, ChunkOverlap: 200, SearchK: 10, MaxResults: 5}
}

func TestKnowledge_AddIsIdempotent(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())
	ctx := context.Background()
	req := &dto.AddKnowledgeRequest{Content: "Goroutines are cheap threads.", Source: "go-book"}

	first, err := f.svc.Add(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Add(ctx, req)
	require.NoError(t, err)

	assert.Len(t, first.DocumentId, 16)
	assert.Equal(t, first.DocumentId, second.DocumentId)
	assert.Equal(t, 1, first.ChunksIndexed)
	assert.False(t, first.Queued)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Chunks)
	assert.Equal(t, int64(1), stats.ByKind[store.KindKnowledge])
	assert.Contains(t, f.events.types(), events.TypeKnowledgeIngested)
}

func TestKnowledge_AddChunksLongContent(t *testing.T) {
	f := newKnowledgeFixture(t, KnowledgeConfig{ChunkSize: 100, ChunkOverlap: 20, SearchK: 10, MaxResults: 5})

	res, err := f.svc.Add(context.Background(), &dto.AddKnowledgeRequest{
		Content: strings.Repeat("channels carry typed values between goroutines. ", 10),
	})

	require.NoError(t, err)
	assert.Greater(t, res.ChunksIndexed, 1)
	assert.Equal(t, res.ChunksIndexed, f.embedder.calls)
}

func TestKnowledge_AddAsyncQueues(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())

	res, err := f.svc.Add(context.Background(), &dto.AddKnowledgeRequest{Content: "queued fact", Category: "ops", Async: true})

	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, res.DocumentId, f.queue.jobs[0].DocumentId)
	assert.Equal(t, store.KindKnowledge, f.queue.jobs[0].Kind)
	assert.Equal(t, "ops", f.queue.jobs[0].Category)
	assert.Equal(t, 0, f.embedder.calls)
}

func TestKnowledge_QualityGate(t *testing.T) {
	cfg := defaultKnowledgeConfig()
	cfg.MinIngestQuality = 0.99
	f := newKnowledgeFixture(t, cfg)

	_, err := f.svc.Add(context.Background(), &dto.AddKnowledgeRequest{
		Content: "astonishing quixotic zephyr velocity",
	})

	assert.True(t, errors.Is(err, rag.ErrInput))
	assert.Equal(t, 0, f.embedder.calls)
}

func TestKnowledge_AddRejectsBlank(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())

	_, err := f.svc.Add(context.Background(), &dto.AddKnowledgeRequest{Content: "  "})

	assert.True(t, errors.Is(err, rag.ErrInput))
}

func TestKnowledge_EmbeddingFailure(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())
	f.embedder.err = errOffline

	_, err := f.svc.Add(context.Background(), &dto.AddKnowledgeRequest{Content: "some fact"})

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
}

func TestKnowledge_AddBatchCollectsFailures(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())

	res, err := f.svc.AddBatch(context.Background(), &dto.AddKnowledgeBatchRequest{Documents: []dto.AddKnowledgeRequest{
		{Content: "first fact"},
		{Content: ""},
		{Content: "second fact"},
	}})

	require.NoError(t, err)
	assert.Len(t, res.Documents, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
}

func TestKnowledge_SearchRanks(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())
	ctx := context.Background()
	_, err := f.svc.Add(ctx, &dto.AddKnowledgeRequest{Content: "Channels synchronize goroutines.", Source: "go-book"})
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, &dto.SearchKnowledgeRequest{Query: "channels"})

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "go-book", res.Results[0].Label)
	assert.Equal(t, []string{"Channels synchronize goroutines."}, res.Content)
	assert.InDelta(t, 0.95*0.6+0.9*0.4, res.Results[0].Confidence, 1e-9)
}

func TestKnowledge_DeleteAndClear(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())
	ctx := context.Background()
	added, err := f.svc.Add(ctx, &dto.AddKnowledgeRequest{Content: "temporary fact"})
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, added.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ChunksDeleted)

	_, err = f.svc.Delete(ctx, added.DocumentId)
	assert.True(t, errors.Is(err, rag.ErrDocumentNotFound))

	_, err = f.svc.Add(ctx, &dto.AddKnowledgeRequest{Content: "another fact"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx))
	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Chunks)
}

func TestKnowledge_Analyze(t *testing.T) {
	f := newKnowledgeFixture(t, defaultKnowledgeConfig())

	res, err := f.svc.Analyze(context.Background(), &dto.AnalyzeTextRequest{Text: "the the the the cat"})

	require.NoError(t, err)
	assert.InDelta(t, 0.7, res.Score, 1e-9)
	assert.NotEmpty(t, res.Status)
}
