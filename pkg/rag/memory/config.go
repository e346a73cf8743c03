package memory

import (
	"context"
	"time"

	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/store"
)

const module = "MEMORY"

type Config struct {
	WindowCapacity         int
	ConsolidationThreshold int
	SummaryMaxLength       int
	SummarizeTimeout       time.Duration
	SummarizeAttempts      int
	PersistAttempts        int
	RetryInitialInterval   time.Duration
	FallbackParts          int
	FallbackExcerpt        int
	SessionTTL             time.Duration
}

func DefaultConfig() Config {
	return Config{
		WindowCapacity:         10,
		ConsolidationThreshold: 10,
		SummaryMaxLength:       500,
		SummarizeTimeout:       15 * time.Second,
		SummarizeAttempts:      3,
		PersistAttempts:        3,
		RetryInitialInterval:   200 * time.Millisecond,
		FallbackParts:          5,
		FallbackExcerpt:        100,
		SessionTTL:             time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = d.WindowCapacity
	}
	if c.ConsolidationThreshold <= 0 {
		c.ConsolidationThreshold = d.ConsolidationThreshold
	}
	if c.SummaryMaxLength <= 0 {
		c.SummaryMaxLength = d.SummaryMaxLength
	}
	if c.SummarizeTimeout <= 0 {
		c.SummarizeTimeout = d.SummarizeTimeout
	}
	if c.SummarizeAttempts <= 0 {
		c.SummarizeAttempts = d.SummarizeAttempts
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = d.PersistAttempts
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.FallbackParts <= 0 {
		c.FallbackParts = d.FallbackParts
	}
	if c.FallbackExcerpt <= 0 {
		c.FallbackExcerpt = d.FallbackExcerpt
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	return c
}

// Summarizer condenses turns into at most maxLength characters.
type Summarizer interface {
	Summarize(ctx context.Context, turns []store.ConversationTurn, maxLength int) (string, error)
}

// Persister keeps a durable copy of session state. Load returns (nil, nil)
// when the session is unknown.
type Persister interface {
	Save(ctx context.Context, state store.SessionState) error
	Load(ctx context.Context, sessionID string) (*store.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

// Promoter receives turns that left the window so they stay retrievable.
type Promoter interface {
	Promote(ctx context.Context, sessionID string, evicted []store.ConversationTurn, summary string) error
}

// Deps are the optional collaborators shared by every session of a store.
type Deps struct {
	Summarizer Summarizer
	Persister  Persister
	Promoter   Promoter
	Logger     logger.ILogger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	return d
}
