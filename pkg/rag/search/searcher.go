package search

import (
	"context"
	"fmt"
	"math"

	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/rag/quality"
	"zero-entropy-be/pkg/store"

	"golang.org/x/sync/errgroup"
)

const module = "SEARCH"

// Config encapsulates search parameters
type Config struct {
	// KeywordBoost blends query term overlap into the similarity:
	// sim*(1-boost) + overlap*boost. Zero disables it.
	KeywordBoost float64
	Filter       Filter
}

// DefaultConfig returns default search configuration
func DefaultConfig() Config {
	return Config{KeywordBoost: 0.3}
}

// Searcher embeds the query and runs a vector search over the index.
type Searcher struct {
	embedder embedding.EmbeddingProvider
	index    VectorIndex
	cfg      Config
	logger   logger.ILogger
}

// NewSearcher creates a new searcher
func NewSearcher(embedder embedding.EmbeddingProvider, index VectorIndex, cfg Config, log logger.ILogger) *Searcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Searcher{embedder: embedder, index: index, cfg: cfg, logger: log}
}

// Search returns up to k raw hits for query.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]store.RetrievalHit, error) {
	return s.SearchWithFilter(ctx, query, k, s.cfg.Filter)
}

func (s *Searcher) SearchWithFilter(ctx context.Context, query string, k int, filter Filter) ([]store.RetrievalHit, error) {
	return s.SearchAll(ctx, query, k, []Filter{filter})
}

// SearchAll embeds the query once and runs one index search per filter
// concurrently, returning up to k hits per filter. A failing filter is logged
// and skipped; the call only fails when every filter failed.
func (s *Searcher) SearchAll(ctx context.Context, query string, k int, filters []Filter) ([]store.RetrievalHit, error) {
	if k <= 0 || len(filters) == 0 {
		return []store.RetrievalHit{}, nil
	}

	emb, err := s.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w: %v", rag.ErrCollaboratorUnavailable, err)
	}

	// Per-filter errors land in errs: one failing filter must not cancel
	// the others, so the group carries no shared context.
	results := make([][]ScoredChunk, len(filters))
	errs := make([]error, len(filters))
	var g errgroup.Group
	for i, filter := range filters {
		g.Go(func() error {
			results[i], errs[i] = s.index.Search(ctx, emb.Embedding.Values, k, filter)
			return nil
		})
	}
	g.Wait()

	var scored []ScoredChunk
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			s.logger.Error(module, "Vector search failed", map[string]interface{}{
				"kind":       filters[i].Kind,
				"session_id": filters[i].SessionID,
				"error":      err.Error(),
			})
			continue
		}
		scored = append(scored, results[i]...)
	}
	if failed == len(filters) {
		return nil, fmt.Errorf("vector search failed: %w: %v", rag.ErrCollaboratorUnavailable, errs[0])
	}

	terms := termSet(query)
	hits := make([]store.RetrievalHit, 0, len(scored))
	for _, sc := range scored {
		similarity := clamp(sc.Similarity)
		if s.cfg.KeywordBoost > 0 && len(terms) > 0 {
			similarity = similarity*(1-s.cfg.KeywordBoost) + overlap(terms, sc.Content)*s.cfg.KeywordBoost
		}
		tags := sc.Tags
		tags.DocumentID = sc.DocumentID
		hits = append(hits, store.RetrievalHit{
			Content:    store.NewTextSpan(sc.Content),
			Similarity: similarity,
			SourceID:   sc.ID,
			Tags:       tags,
		})
	}

	s.logger.Debug(module, "Vector search complete", map[string]interface{}{
		"k":       k,
		"filters": len(filters),
		"hits":    len(hits),
	})
	return hits, nil
}

func termSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range quality.Tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

func overlap(queryTerms map[string]struct{}, content string) float64 {
	contentTerms := termSet(content)
	shared := 0
	for t := range queryTerms {
		if _, ok := contentTerms[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(queryTerms))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
