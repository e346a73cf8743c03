package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/quality"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"
	"zero-entropy-be/pkg/utils"
)

const knowledgeModule = "KNOWLEDGE"

type IKnowledgeService interface {
	Indexer
	Add(ctx context.Context, req *dto.AddKnowledgeRequest) (*dto.AddKnowledgeResponse, error)
	AddBatch(ctx context.Context, req *dto.AddKnowledgeBatchRequest) (*dto.AddKnowledgeBatchResponse, error)
	Search(ctx context.Context, req *dto.SearchKnowledgeRequest) (*dto.SearchKnowledgeResponse, error)
	Delete(ctx context.Context, documentId string) (*dto.DeleteKnowledgeResponse, error)
	Stats(ctx context.Context) (*search.Stats, error)
	Analyze(ctx context.Context, req *dto.AnalyzeTextRequest) (*dto.AnalyzeTextResponse, error)
	Clear(ctx context.Context) error
}

type KnowledgeConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	MinIngestQuality float64
	SearchK          int
	MaxResults       int
}

type knowledgeService struct {
	index    search.VectorIndex
	embedder embedding.EmbeddingProvider
	searcher *search.Searcher
	ranker   *ranker.Ranker
	scorer   *quality.Scorer
	queue    IPublisherService
	events   events.Publisher
	cfg      KnowledgeConfig
	logger   logger.ILogger
}

func NewKnowledgeService(
	index search.VectorIndex,
	embedder embedding.EmbeddingProvider,
	searcher *search.Searcher,
	rk *ranker.Ranker,
	scorer *quality.Scorer,
	queue IPublisherService,
	publisher events.Publisher,
	cfg KnowledgeConfig,
	log logger.ILogger,
) IKnowledgeService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &knowledgeService{
		index:    index,
		embedder: embedder,
		searcher: searcher,
		ranker:   rk,
		scorer:   scorer,
		queue:    queue,
		events:   publisher,
		cfg:      cfg,
		logger:   log,
	}
}

func (ks *knowledgeService) Add(ctx context.Context, req *dto.AddKnowledgeRequest) (*dto.AddKnowledgeResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("knowledge content is empty: %w", rag.ErrInput)
	}
	if _, err := ks.scorer.Evaluate(content); err != nil {
		return nil, err
	}

	idFields := map[string]interface{}{"source": req.Source, "category": req.Category}
	for k, v := range req.Metadata {
		idFields["meta."+k] = v
	}
	docId := store.DocumentID(content, idFields)

	var kept []string
	rejected := 0
	for _, chunk := range utils.SplitText(content, ks.cfg.ChunkSize, ks.cfg.ChunkOverlap) {
		if ks.cfg.MinIngestQuality > 0 && ks.scorer.Score(chunk) < ks.cfg.MinIngestQuality {
			rejected++
			continue
		}
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("all %d chunks scored below quality %.2f: %w", rejected, ks.cfg.MinIngestQuality, rag.ErrInput)
	}

	job := dto.IngestJob{
		DocumentId: docId,
		Chunks:     kept,
		Source:     req.Source,
		Category:   req.Category,
		Kind:       store.KindKnowledge,
		Metadata:   req.Metadata,
	}
	res := &dto.AddKnowledgeResponse{DocumentId: docId, ChunksRejected: rejected}

	if req.Async && ks.queue != nil {
		if err := ks.queue.PublishIngest(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to queue document %s: %w: %v", docId, rag.ErrCollaboratorUnavailable, err)
		}
		res.Queued = true
		res.ChunksIndexed = len(kept)
		return res, nil
	}

	n, err := ks.Index(ctx, job)
	if err != nil {
		return nil, err
	}
	res.ChunksIndexed = n
	return res, nil
}

func (ks *knowledgeService) AddBatch(ctx context.Context, req *dto.AddKnowledgeBatchRequest) (*dto.AddKnowledgeBatchResponse, error) {
	res := &dto.AddKnowledgeBatchResponse{Documents: []dto.AddKnowledgeResponse{}}
	for i := range req.Documents {
		added, err := ks.Add(ctx, &req.Documents[i])
		if err != nil {
			res.Failed = append(res.Failed, dto.BatchFailureDTO{Index: i, Error: err.Error()})
			continue
		}
		res.Documents = append(res.Documents, *added)
	}
	if len(res.Documents) == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("no document of the batch could be added: %s", res.Failed[0].Error)
	}
	return res, nil
}

// Index embeds every chunk of job and replaces the document in the index.
func (ks *knowledgeService) Index(ctx context.Context, job dto.IngestJob) (int, error) {
	if job.DocumentId == "" || len(job.Chunks) == 0 {
		return 0, fmt.Errorf("ingest job without document or chunks: %w", rag.ErrInput)
	}

	now := time.Now().UTC()
	chunks := make([]search.Chunk, 0, len(job.Chunks))
	for i, text := range job.Chunks {
		res, err := ks.embedder.Generate(ctx, text, embedding.TaskRetrievalDocument)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w: %v", i, job.DocumentId, rag.ErrCollaboratorUnavailable, err)
		}
		chunks = append(chunks, search.Chunk{
			ID:         fmt.Sprintf("%s_%d", job.DocumentId, i),
			DocumentID: job.DocumentId,
			Content:    text,
			Embedding:  res.Embedding.Values,
			CreatedAt:  now,
			Tags: store.Tags{
				Source:     job.Source,
				Category:   job.Category,
				SessionID:  job.SessionId,
				Kind:       job.Kind,
				DocumentID: job.DocumentId,
				Timestamp:  now,
				Extra:      job.Metadata,
			},
		})
	}

	if _, err := ks.index.DeleteDocument(ctx, job.DocumentId); err != nil {
		return 0, fmt.Errorf("clear old chunks of %s: %w: %v", job.DocumentId, rag.ErrCollaboratorUnavailable, err)
	}
	if err := ks.index.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks of %s: %w: %v", job.DocumentId, rag.ErrCollaboratorUnavailable, err)
	}

	ks.publish(ctx, events.New(events.TypeKnowledgeIngested, map[string]interface{}{
		"document_id": job.DocumentId,
		"type":        job.Kind,
		"session_id":  job.SessionId,
		"chunks":      len(chunks),
	}))
	return len(chunks), nil
}

func (ks *knowledgeService) Search(ctx context.Context, req *dto.SearchKnowledgeRequest) (*dto.SearchKnowledgeResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty: %w", rag.ErrInput)
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = ks.cfg.MaxResults
	}
	k := max(ks.cfg.SearchK, maxResults)

	hits, err := ks.searcher.SearchWithFilter(ctx, query, k, search.Filter{Kind: req.Type, SessionID: req.SessionId})
	if err != nil {
		return nil, err
	}

	ranked := ks.ranker.Rank(query, hits, maxResults)
	res := &dto.SearchKnowledgeResponse{
		Query:   query,
		Results: make([]dto.SourceDTO, 0, len(ranked)),
		Content: make([]string, 0, len(ranked)),
	}
	for _, f := range ranked {
		res.Results = append(res.Results, toSourceDTO(f))
		res.Content = append(res.Content, f.Content)
	}
	return res, nil
}

func (ks *knowledgeService) Delete(ctx context.Context, documentId string) (*dto.DeleteKnowledgeResponse, error) {
	n, err := ks.index.DeleteDocument(ctx, documentId)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w: %v", documentId, rag.ErrCollaboratorUnavailable, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("knowledge %s: %w", documentId, rag.ErrDocumentNotFound)
	}

	ks.publish(ctx, events.New(events.TypeKnowledgeDeleted, map[string]interface{}{
		"document_id": documentId,
		"chunks":      n,
	}))
	return &dto.DeleteKnowledgeResponse{DocumentId: documentId, ChunksDeleted: n}, nil
}

func (ks *knowledgeService) Stats(ctx context.Context) (*search.Stats, error) {
	stats, err := ks.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge stats: %w: %v", rag.ErrCollaboratorUnavailable, err)
	}
	return &stats, nil
}

func (ks *knowledgeService) Analyze(ctx context.Context, req *dto.AnalyzeTextRequest) (*dto.AnalyzeTextResponse, error) {
	report, err := ks.scorer.Report(req.Text)
	if err != nil {
		return nil, err
	}
	return &dto.AnalyzeTextResponse{
		Score:       report.Metrics.OverallQuality,
		Entropy:     report.Metrics.ShannonEntropy,
		Status:      report.Status,
		Metrics:     report.Metrics,
		Suggestions: report.Suggestions,
	}, nil
}

func (ks *knowledgeService) Clear(ctx context.Context) error {
	if err := ks.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear knowledge: %w: %v", rag.ErrCollaboratorUnavailable, err)
	}
	ks.logger.Warn(knowledgeModule, "Knowledge index cleared", nil)
	return nil
}

func (ks *knowledgeService) publish(ctx context.Context, event events.Event) {
	if err := ks.events.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		ks.logger.Warn(knowledgeModule, "Failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}

func toSourceDTO(f store.RankedFragment) dto.SourceDTO {
	return dto.SourceDTO{
		SourceId:    f.SourceID,
		Label:       f.Label(),
		Kind:        f.Tags.Kind,
		Similarity:  f.Similarity,
		Quality:     f.Quality,
		Confidence:  f.Confidence,
		Fingerprint: f.Fingerprint,
	}
}
