package quality

import "slices"

// Report is what the analyze endpoint and the CLI print.
type Report struct {
	Metrics     Metrics  `json:"metrics"`
	Status      string   `json:"status"`
	Suggestions []string `json:"suggestions"`
}

func (s *Scorer) Report(text string) (Report, error) {
	m, err := s.Evaluate(text)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Metrics:     m,
		Status:      Status(m.ShannonEntropy),
		Suggestions: Suggestions(m),
	}, nil
}

// Status labels a raw entropy value in bits.
func Status(entropy float64) string {
	switch {
	case entropy < 2.0:
		return "Excellent (Very Low Entropy)"
	case entropy < 3.5:
		return "Good (Low Entropy)"
	case entropy < 5.0:
		return "Acceptable (Moderate Entropy)"
	case entropy < 7.0:
		return "Poor (High Entropy)"
	default:
		return "Very Poor (Very High Entropy)"
	}
}

func Suggestions(m Metrics) []string {
	var out []string
	if m.Certainty < 0.6 {
		out = append(out, "Focus on fewer key terms to reduce vocabulary spread")
	}
	if m.LexicalDiversity > 0.8 {
		out = append(out, "Use more consistent vocabulary to improve coherence")
	}
	if m.SemanticCoherence < 0.5 {
		out = append(out,
			"Add transition words to improve logical flow",
			"Keep sentence lengths consistent")
	}
	if m.OverallQuality < 0.6 {
		out = append(out, "Consider restructuring content for better information organization")
	}
	if len(out) == 0 {
		out = append(out, "Text quality is good - entropy is well-controlled")
	}
	return out
}

func sortedCounts(freq map[string]int) []int {
	counts := make([]int, 0, len(freq))
	for _, c := range freq {
		counts = append(counts, c)
	}
	slices.Sort(counts)
	return counts
}
