package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"

	"github.com/cenkalti/backoff/v5"
)

// Session owns one conversation's short-term window and running summary.
//
// Lifecycle: EMPTY -> ACTIVE on the first append, ACTIVE -> CONSOLIDATING while
// old turns are summarized, back to ACTIVE, and CLOSED on delete. Every
// mutation is serialized by mu. Consolidation only holds mu while capturing
// and applying its result, so appends keep flowing while the summarizer runs.
type Session struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	state    store.SessionState
	pending  bool
	inflight chan struct{}

	// turn serializes whole request turns, see Store.WithLock.
	turn chan struct{}

	saveMu sync.Mutex
}

func newSession(id string, cfg Config, deps Deps) *Session {
	now := time.Now().UTC()
	return &Session{
		cfg:  cfg,
		deps: deps,
		state: store.SessionState{
			SessionID: id,
			Window:    []store.ConversationTurn{},
			Phase:     store.PhaseEmpty,
			CreatedAt: now,
			UpdatedAt: now,
		},
		turn: make(chan struct{}, 1),
	}
}

func restoreSession(state store.SessionState, cfg Config, deps Deps) *Session {
	s := newSession(state.SessionID, cfg, deps)
	s.state = state.Clone()
	if s.state.Phase == store.PhaseConsolidating {
		s.state.Phase = store.PhaseActive
	}
	if s.state.Window == nil {
		s.state.Window = []store.ConversationTurn{}
	}
	s.refreshPending()
	return s
}

func (s *Session) ID() string {
	return s.state.SessionID
}

// State returns a copy of the current state without waiting for consolidation.
func (s *Session) State() store.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Append adds a turn to the window. It never runs the summarizer; it only
// marks consolidation as pending once the window or threshold is exceeded.
func (s *Session) Append(ctx context.Context, turn store.ConversationTurn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("memory: unknown role %q: %w", turn.Role, rag.ErrInput)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if s.state.Phase == store.PhaseClosed {
		s.mu.Unlock()
		return fmt.Errorf("memory: append to %s: %w", s.state.SessionID, rag.ErrSessionClosed)
	}
	s.state.Window = append(s.state.Window, turn)
	s.state.TurnCount++
	s.state.UpdatedAt = turn.CreatedAt
	if s.state.Phase == store.PhaseEmpty {
		s.state.Phase = store.PhaseActive
	}
	s.refreshPending()
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// refreshPending must be called with mu held.
func (s *Session) refreshPending() {
	s.pending = len(s.state.Window) > s.cfg.WindowCapacity ||
		s.state.TurnCount-s.state.LastConsolidation >= s.cfg.ConsolidationThreshold
}

// NeedsConsolidation reports whether a consolidation pass is due.
func (s *Session) NeedsConsolidation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending && s.state.Phase != store.PhaseClosed
}

// MaybeConsolidate runs a pending consolidation and reports whether it did.
// If another consolidation is already running it waits for that one first.
func (s *Session) MaybeConsolidate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	for s.inflight != nil {
		done := s.inflight
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		s.mu.Lock()
	}
	if !s.pending || s.state.Phase == store.PhaseClosed {
		s.mu.Unlock()
		return false, nil
	}

	evictCount := max(0, len(s.state.Window)-s.cfg.WindowCapacity)
	evicted := make([]store.ConversationTurn, evictCount)
	copy(evicted, s.state.Window[:evictCount])
	previous := s.state.Summary
	turnCount := s.state.TurnCount

	done := make(chan struct{})
	s.inflight = done
	s.pending = false
	s.state.Phase = store.PhaseConsolidating
	s.mu.Unlock()

	summary := previous
	if evictCount > 0 {
		summary = s.summarize(ctx, previous, evicted)
	}

	s.mu.Lock()
	// Appends made meanwhile went to the tail, so the evicted turns are still the prefix.
	window := make([]store.ConversationTurn, len(s.state.Window)-evictCount)
	copy(window, s.state.Window[evictCount:])
	s.state.Window = window
	s.state.Summary = summary
	s.state.LastConsolidation = turnCount
	s.state.UpdatedAt = time.Now().UTC()
	if s.state.Phase == store.PhaseConsolidating {
		s.state.Phase = store.PhaseActive
	}
	s.inflight = nil
	s.refreshPending()
	close(done)
	s.mu.Unlock()

	s.deps.Logger.Info(module, "Session consolidated", map[string]interface{}{
		"session_id":  s.state.SessionID,
		"evicted":     evictCount,
		"window_size": len(window),
		"turn_count":  turnCount,
	})

	if evictCount > 0 && s.deps.Promoter != nil {
		if err := s.deps.Promoter.Promote(context.WithoutCancel(ctx), s.state.SessionID, evicted, summary); err != nil {
			s.deps.Logger.Warn(module, "Failed to promote evicted turns", map[string]interface{}{
				"session_id": s.state.SessionID,
				"error":      err.Error(),
			})
		}
	}
	s.persist(ctx)

	return true, nil
}

// Snapshot returns an atomic copy of the session once no consolidation is
// pending or running, so the window never exceeds its capacity.
func (s *Session) Snapshot(ctx context.Context) (store.SessionState, error) {
	for {
		s.mu.Lock()
		settled := s.inflight == nil && (!s.pending || s.state.Phase == store.PhaseClosed)
		if settled {
			snap := s.state.Clone()
			s.mu.Unlock()
			return snap, nil
		}
		s.mu.Unlock()

		if _, err := s.MaybeConsolidate(ctx); err != nil {
			return store.SessionState{}, err
		}
	}
}

// GetContext returns the window and summary used to build a prompt.
func (s *Session) GetContext(ctx context.Context) ([]store.ConversationTurn, string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	return snap.Window, snap.Summary, nil
}

// Close makes the session reject further appends.
func (s *Session) Close() {
	s.mu.Lock()
	s.state.Phase = store.PhaseClosed
	s.state.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("memory: waiting for session %s: %w", s.state.SessionID, ctx.Err())
	}
}

func (s *Session) unlock() {
	<-s.turn
}

// persist saves a snapshot. Failures are logged; the in-memory state stays.
func (s *Session) persist(ctx context.Context) {
	if s.deps.Persister == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.State()
	ctx = context.WithoutCancel(ctx)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.deps.Persister.Save(ctx, snap)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.PersistAttempts)),
	)
	if err != nil {
		s.deps.Logger.Error(module, "Failed to persist session", map[string]interface{}{
			"session_id": snap.SessionID,
			"turn_count": snap.TurnCount,
			"error":      err.Error(),
		})
	}
}

func (s *Session) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval
	b.MaxInterval = 10 * s.cfg.RetryInitialInterval
	return b
}
