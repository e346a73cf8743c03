package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store hands out sessions by id. Implementations never share one lock
// across sessions.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	GetOrCreate(ctx context.Context, sessionID string) (*Session, bool, error)
	Delete(ctx context.Context, sessionID string) error
	// WithLock runs fn while holding the session's turn lock so that one
	// request turn cannot interleave with another on the same session.
	WithLock(ctx context.Context, sessionID string, fn func(*Session) error) error
	List() []store.SessionState
	Len() int
	Clear(ctx context.Context) error
}

// CacheStore keeps live sessions in an expiring in-process cache and
// hydrates evicted ones from the persister on demand.
type CacheStore struct {
	cache *cache.Cache
	cfg   Config
	deps  Deps
}

func NewCacheStore(cfg Config, deps Deps) *CacheStore {
	cfg = cfg.withDefaults()
	// Idle sessions expire after the TTL and are purged every 10 minutes.
	c := cache.New(cfg.SessionTTL, 10*time.Minute)
	return &CacheStore{
		cache: c,
		cfg:   cfg,
		deps:  deps.withDefaults(),
	}
}

func (r *CacheStore) Config() Config {
	return r.cfg
}

func (r *CacheStore) lookup(sessionID string) (*Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		sess := x.(*Session)
		_ = r.cache.Replace(sessionID, sess, cache.DefaultExpiration)
		return sess, true
	}
	return nil, false
}

// insert adds sess unless another goroutine won the race, in which case the
// existing session is returned.
func (r *CacheStore) insert(sess *Session) *Session {
	for {
		if err := r.cache.Add(sess.ID(), sess, cache.DefaultExpiration); err == nil {
			return sess
		}
		if existing, ok := r.lookup(sess.ID()); ok {
			return existing
		}
	}
}

func (r *CacheStore) hydrate(ctx context.Context, sessionID string) (*Session, error) {
	if r.deps.Persister == nil {
		return nil, nil
	}
	state, err := r.deps.Persister.Load(ctx, sessionID)
	if err != nil {
		r.deps.Logger.Warn(module, "Failed to load persisted session", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("memory: load %s: %w: %v", sessionID, rag.ErrCollaboratorUnavailable, err)
	}
	if state == nil || state.Phase == store.PhaseClosed {
		return nil, nil
	}
	return r.insert(restoreSession(*state, r.cfg, r.deps)), nil
}

func (r *CacheStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sess, ok := r.lookup(sessionID); ok {
		return sess, nil
	}
	sess, err := r.hydrate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("memory: %s: %w", sessionID, rag.ErrSessionNotFound)
	}
	return sess, nil
}

// GetOrCreate returns the session and whether it was created. An empty id
// creates a session with a fresh uuid. When the persisted copy of a known id
// cannot be read the call fails instead of starting over, so the first save
// of a new session never overwrites history that is only unreachable.
func (r *CacheStore) GetOrCreate(ctx context.Context, sessionID string) (*Session, bool, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else {
		if sess, ok := r.lookup(sessionID); ok {
			return sess, false, nil
		}
		sess, err := r.hydrate(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}
		if sess != nil {
			return sess, false, nil
		}
	}

	created := newSession(sessionID, r.cfg, r.deps)
	sess := r.insert(created)
	if sess == created {
		r.deps.Logger.Info(module, "Session created", map[string]interface{}{"session_id": sessionID})
	}
	return sess, sess == created, nil
}

// Delete closes the live session and removes the persisted copy. A session
// that only exists in the persister is found through Load; a failing Load or
// Delete is reported as ErrCollaboratorUnavailable.
func (r *CacheStore) Delete(ctx context.Context, sessionID string) error {
	sess, found := r.lookup(sessionID)
	if found {
		sess.Close()
		r.cache.Delete(sessionID)
	}

	if r.deps.Persister != nil {
		if !found {
			state, err := r.deps.Persister.Load(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("memory: load %s: %w: %v", sessionID, rag.ErrCollaboratorUnavailable, err)
			}
			found = state != nil
		}
		if found {
			if err := r.deps.Persister.Delete(ctx, sessionID); err != nil {
				r.deps.Logger.Error(module, "Failed to delete persisted session", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
				return fmt.Errorf("memory: delete %s: %w: %v", sessionID, rag.ErrCollaboratorUnavailable, err)
			}
		}
	}

	if !found {
		return fmt.Errorf("memory: %s: %w", sessionID, rag.ErrSessionNotFound)
	}
	r.deps.Logger.Info(module, "Session deleted", map[string]interface{}{"session_id": sessionID})
	return nil
}

// Evict drops the cached copy of a session without touching the persisted
// one. The next Get hydrates it again. Used when another instance changed it.
func (r *CacheStore) Evict(sessionID string) bool {
	if _, found := r.cache.Get(sessionID); !found {
		return false
	}
	r.cache.Delete(sessionID)
	return true
}

func (r *CacheStore) WithLock(ctx context.Context, sessionID string, fn func(*Session) error) error {
	sess, _, err := r.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := sess.lock(ctx); err != nil {
		return err
	}
	defer sess.unlock()
	return fn(sess)
}

// List returns live sessions, most recently updated first.
func (r *CacheStore) List() []store.SessionState {
	items := r.cache.Items()
	out := make([]store.SessionState, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Session).State())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (r *CacheStore) Len() int {
	return r.cache.ItemCount()
}

// Clear closes and removes every live session.
func (r *CacheStore) Clear(ctx context.Context) error {
	for id := range r.cache.Items() {
		if err := r.Delete(ctx, id); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, rag.ErrSessionNotFound)
}
