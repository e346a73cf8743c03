package ranker

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/store"
)

const module = "RANKER"

// TextScorer scores a text in [0,1].
type TextScorer interface {
	Score(text string) float64
}

// Config holds the ranking thresholds and weights
type Config struct {
	QualityFloor      float64
	ConfidenceFloor   float64
	SimilarityWeight  float64
	QualityWeight     float64
	FingerprintEdge   int
	FingerprintLength int
}

// DefaultConfig returns default ranking configuration
func DefaultConfig() Config {
	return Config{
		QualityFloor:      0.3,
		ConfidenceFloor:   0.7,
		SimilarityWeight:  0.6,
		QualityWeight:     0.4,
		FingerprintEdge:   50,
		FingerprintLength: digestHexLength,
	}
}

// Ranker turns raw search hits into a short, deduplicated, confidence ordered list.
// It holds no mutable state and may be shared between goroutines.
type Ranker struct {
	cfg    Config
	scorer TextScorer
	logger logger.ILogger
}

// NewRanker creates a new ranker
func NewRanker(cfg Config, scorer TextScorer, log logger.ILogger) *Ranker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Ranker{cfg: cfg, scorer: scorer, logger: log}
}

func (r *Ranker) Config() Config {
	return r.cfg
}

// Confidence blends similarity with quality and clamps the result to [0,1].
func (r *Ranker) Confidence(similarity, quality float64) float64 {
	return clamp(similarity*r.cfg.SimilarityWeight + quality*r.cfg.QualityWeight)
}

// Rank scores, filters, deduplicates, sorts and truncates hits. Hits whose
// content cannot be evaluated are dropped and logged. The result is never nil.
func (r *Ranker) Rank(query string, hits []store.RetrievalHit, maxResults int) []store.RankedFragment {
	out := make([]store.RankedFragment, 0, min(len(hits), max(maxResults, 0)))
	if maxResults <= 0 || len(hits) == 0 {
		return out
	}

	var malformed, lowQuality, lowConfidence, duplicates int
	seen := make(map[string]struct{}, len(hits))
	candidates := make([]store.RankedFragment, 0, len(hits))

	for i, hit := range hits {
		if reason := validate(hit); reason != "" {
			malformed++
			r.logger.Warn(module, "Dropping malformed hit", map[string]interface{}{
				"index":     i,
				"source_id": hit.SourceID,
				"reason":    reason,
			})
			continue
		}

		quality := hit.Content.Quality(r.scorer.Score)
		similarity := clamp(hit.Similarity)
		confidence := r.Confidence(similarity, quality)

		if quality < r.cfg.QualityFloor {
			lowQuality++
			continue
		}
		if confidence < r.cfg.ConfidenceFloor {
			lowConfidence++
			continue
		}

		fp := Fingerprint(hit.Content.Text, r.cfg.FingerprintEdge, r.cfg.FingerprintLength)
		if _, dup := seen[fp]; dup {
			duplicates++
			continue
		}
		seen[fp] = struct{}{}

		candidates = append(candidates, store.RankedFragment{
			Content:     hit.Content.Text,
			Similarity:  similarity,
			Quality:     quality,
			Confidence:  confidence,
			SourceID:    hit.SourceID,
			Fingerprint: fp,
			Tags:        hit.Tags,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Confidence > candidates[b].Confidence
	})
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	out = append(out, candidates...)

	r.logger.Debug(module, "Ranked retrieval hits", map[string]interface{}{
		"query":          truncate(query, 80),
		"hits":           len(hits),
		"kept":           len(out),
		"malformed":      malformed,
		"low_quality":    lowQuality,
		"low_confidence": lowConfidence,
		"duplicates":     duplicates,
	})

	return out
}

func validate(hit store.RetrievalHit) string {
	switch {
	case hit.Content == nil:
		return "missing content"
	case !utf8.ValidString(hit.Content.Text):
		return "content is not valid utf-8"
	case strings.TrimSpace(hit.Content.Text) == "":
		return "blank content"
	case math.IsNaN(hit.Similarity) || math.IsInf(hit.Similarity, 0):
		return "similarity is not a number"
	}
	return ""
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

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
