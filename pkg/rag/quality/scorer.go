// Package quality scores text by how concentrated and coherent its vocabulary is.
//
// A span that keeps returning to the same few content words scores higher than
// one that scatters across many unrelated words. The overall score blends three
// signals: certainty (inverse normalized Shannon entropy of word frequencies),
// lexical diversity penalized away from 0.5, and sentence-level coherence.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"zero-entropy-be/pkg/rag"
)

const (
	certaintyWeight = 0.4
	diversityWeight = 0.3
	coherenceWeight = 0.3

	minTokenLength = 2
)

var stopWords = toSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
	"is", "are", "was", "were", "be", "been", "being", "have", "has", "had", "do", "does", "did",
	"will", "would", "could", "should", "may", "might", "can", "this", "that", "these", "those",
)

var transitionWords = toSet(
	"however", "therefore", "furthermore", "moreover", "consequently", "meanwhile",
	"subsequently", "additionally", "similarly", "likewise", "instead", "otherwise",
	"thus", "hence", "accordingly", "finally",
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Metrics is the full breakdown behind a score.
type Metrics struct {
	ShannonEntropy     float64 `json:"shannon_entropy"`
	NormalizedEntropy  float64 `json:"normalized_entropy"`
	Certainty          float64 `json:"certainty"`
	LexicalDiversity   float64 `json:"lexical_diversity"`
	DiversityScore     float64 `json:"diversity_score"`
	SemanticCoherence  float64 `json:"semantic_coherence"`
	OverallQuality     float64 `json:"overall_quality"`
	TokenCount         int     `json:"token_count"`
	DistinctTokenCount int     `json:"distinct_token_count"`
	SentenceCount      int     `json:"sentence_count"`
}

// emptyMetrics is returned for text that yields no tokens: empty,
// whitespace-only, or made of stop words, short words and punctuation.
// Entropy-style fields are 0, certainty-style fields are 1.
var emptyMetrics = Metrics{
	Certainty:         1,
	SemanticCoherence: 1,
	OverallQuality:    1,
}

// Scorer is stateless and safe for concurrent use.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the overall quality in [0,1]. Malformed input scores 0.
func (s *Scorer) Score(text string) float64 {
	m, err := s.Evaluate(text)
	if err != nil {
		return 0
	}
	return m.OverallQuality
}

// Entropy returns the raw Shannon entropy, in bits, of the token distribution.
func (s *Scorer) Entropy(text string) float64 {
	return shannon(frequencies(Tokenize(text)))
}

// Analyze is Evaluate without the error; malformed input yields zero metrics.
func (s *Scorer) Analyze(text string) Metrics {
	m, _ := s.Evaluate(text)
	return m
}

// Evaluate computes every metric. It fails only on invalid UTF-8.
func (s *Scorer) Evaluate(text string) (Metrics, error) {
	if !utf8.ValidString(text) {
		return Metrics{}, fmt.Errorf("quality: text is not valid utf-8: %w", rag.ErrInput)
	}
	if strings.TrimSpace(text) == "" {
		return emptyMetrics, nil
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return emptyMetrics, nil
	}
	freq := frequencies(tokens)

	m := Metrics{
		TokenCount:         len(tokens),
		DistinctTokenCount: len(freq),
	}

	m.ShannonEntropy = shannon(freq)
	maxEntropy := 1.0
	if len(freq) > 1 {
		maxEntropy = math.Log2(float64(len(freq)))
	}
	m.NormalizedEntropy = math.Min(1, m.ShannonEntropy/maxEntropy)
	m.Certainty = 1 - m.NormalizedEntropy

	if len(tokens) > 0 {
		m.LexicalDiversity = float64(len(freq)) / float64(len(tokens))
	}
	m.DiversityScore = math.Max(0, 1-math.Abs(m.LexicalDiversity-0.5)/0.5)

	m.SemanticCoherence, m.SentenceCount = coherence(text)

	m.OverallQuality = clamp(
		m.Certainty*certaintyWeight +
			m.DiversityScore*diversityWeight +
			m.SemanticCoherence*coherenceWeight,
	)
	return m, nil
}

// Tokenize lowercases text, treats every non-letter as a separator and drops
// stop words and tokens shorter than two letters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func frequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

func shannon(freq map[string]int) float64 {
	total := 0
	for _, c := range freq {
		total += c
	}
	if total == 0 {
		return 0
	}

	// Map iteration order is random; sum in a fixed order so the result is
	// bit-identical between calls.
	counts := sortedCounts(freq)
	h := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

func coherence(text string) (float64, int) {
	var sentences []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	n := len(sentences)
	if n <= 1 {
		return 1, n
	}

	withTransition := 0
	lengths := make([]float64, n)
	for i, s := range sentences {
		words := strings.Fields(strings.ToLower(s))
		lengths[i] = float64(len(words))
		for _, w := range words {
			if _, ok := transitionWords[strings.TrimFunc(w, notLetter)]; ok {
				withTransition++
				break
			}
		}
	}

	transition := math.Min(1, float64(withTransition)/math.Max(1, float64(n-1)))

	mean := 0.0
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(n)
	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(n)
	consistency := 1 - math.Min(1, variance/math.Max(1, mean*mean))

	return (transition + consistency) / 2, n
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r)
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

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
