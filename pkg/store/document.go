package store

import (
	"encoding/json"
	"sync"
	"time"
)

// TextSpan is a piece of text with a lazily computed quality score.
// The score is computed at most once and never changes afterwards.
type TextSpan struct {
	Text string

	once    sync.Once
	quality float64
}

func NewTextSpan(text string) *TextSpan {
	return &TextSpan{Text: text}
}

// Quality returns the cached score, computing it with score on first use.
func (s *TextSpan) Quality(score func(string) float64) float64 {
	s.once.Do(func() {
		s.quality = score(s.Text)
	})
	return s.quality
}

func (s *TextSpan) String() string {
	if s == nil {
		return ""
	}
	return s.Text
}

func (s *TextSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TextSpan) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	s.Text = text
	return nil
}

// Tags carries provenance for a piece of knowledge. The named fields are the
// keys every backend understands; Extra holds anything else the caller sent.
type Tags struct {
	Source     string                 `json:"source,omitempty"`
	Category   string                 `json:"category,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Kind       string                 `json:"type,omitempty"`
	DocumentID string                 `json:"document_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

const (
	KindKnowledge          = "knowledge"
	KindConversationMemory = "conversation_memory"
	KindSessionSummary     = "session_summary"
)

// RetrievalHit is a raw search result. It lives only for one ranking call.
type RetrievalHit struct {
	Content    *TextSpan `json:"content"`
	Similarity float64   `json:"similarity"`
	SourceID   string    `json:"source_id"`
	Tags       Tags      `json:"tags"`
}

// RankedFragment is a hit that survived ranking.
type RankedFragment struct {
	Content     string  `json:"content"`
	Similarity  float64 `json:"similarity"`
	Quality     float64 `json:"quality"`
	Confidence  float64 `json:"confidence"`
	SourceID    string  `json:"source_id"`
	Fingerprint string  `json:"fingerprint"`
	Tags        Tags    `json:"tags"`
}

// Label is the human readable origin used when a fragment is shown to the model.
func (f RankedFragment) Label() string {
	if f.Tags.Source != "" {
		return f.Tags.Source
	}
	if f.SourceID != "" {
		return f.SourceID
	}
	return "unknown"
}
