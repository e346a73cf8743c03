package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zero-entropy-be/pkg/rag"
	"zero-entropy-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStore_GetOrCreate(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})
	ctx := context.Background()

	first, created, err := r.GetOrCreate(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := r.GetOrCreate(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	fresh, created, err := r.GetOrCreate(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, fresh.ID())
	assert.Equal(t, 2, r.Len())
}

func TestCacheStore_ConcurrentCreateYieldsOneSession(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})

	var wg sync.WaitGroup
	sessions := make([]*Session, 20)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], _, _ = r.GetOrCreate(context.Background(), "shared")
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}

func TestCacheStore_GetUnknown(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})

	_, err := r.Get(context.Background(), "missing")

	assert.True(t, errors.Is(err, rag.ErrSessionNotFound))
}

func TestCacheStore_DeleteClosesSession(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()

	sess, _, err := r.GetOrCreate(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, sess.Append(ctx, store.NewTurn(store.RoleUser, "hi")))

	require.NoError(t, r.Delete(ctx, "abc"))

	assert.Equal(t, store.PhaseClosed, sess.State().Phase)
	assert.True(t, errors.Is(sess.Append(ctx, store.NewTurn(store.RoleUser, "again")), rag.ErrSessionClosed))
	_, err = r.Get(ctx, "abc")
	assert.True(t, errors.Is(err, rag.ErrSessionNotFound))
	assert.True(t, errors.Is(r.Delete(ctx, "abc"), rag.ErrSessionNotFound))
}

func TestCacheStore_HydratesFromPersister(t *testing.T) {
	p := newFakePersister()
	p.states["old"] = store.SessionState{
		SessionID: "old",
		Window:    []store.ConversationTurn{store.NewTurn(store.RoleUser, "remember me")},
		Summary:   "earlier talk",
		TurnCount: 7,
		Phase:     store.PhaseConsolidating,
	}
	r := NewCacheStore(testConfig(), Deps{Persister: p})

	sess, err := r.Get(context.Background(), "old")

	require.NoError(t, err)
	state := sess.State()
	assert.Equal(t, "earlier talk", state.Summary)
	assert.Equal(t, 7, state.TurnCount)
	assert.Equal(t, store.PhaseActive, state.Phase)
	assert.Equal(t, "remember me", state.Window[0].Content)
}

func TestCacheStore_WithLockSerializesTurns(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.WithLock(context.Background(), "abc", func(s *Session) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return s.Append(context.Background(), store.NewTurn(store.RoleUser, "x"))
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	sess, err := r.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 10, sess.State().TurnCount)
}

func TestCacheStore_WithLockHonoursContext(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = r.WithLock(context.Background(), "abc", func(*Session) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.WithLock(ctx, "abc", func(*Session) error { return nil })
	close(hold)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCacheStore_ListAndClear(t *testing.T) {
	r := NewCacheStore(testConfig(), Deps{})
	ctx := context.Background()

	a, _, _ := r.GetOrCreate(ctx, "a")
	_, _, _ = r.GetOrCreate(ctx, "b")
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, a.Append(ctx, store.NewTurn(store.RoleUser, "newest")))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].SessionID)

	require.NoError(t, r.Clear(ctx))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, store.PhaseClosed, a.State().Phase)
}

func TestCacheStore_EvictRehydrates(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()

	sess, _, err := r.GetOrCreate(ctx, "shared")
	require.NoError(t, err)
	require.NoError(t, sess.Append(ctx, store.NewTurn(store.RoleUser, "hello")))

	assert.True(t, r.Evict("shared"))
	assert.False(t, r.Evict("shared"))
	assert.Equal(t, 0, r.Len())

	again, err := r.Get(ctx, "shared")
	require.NoError(t, err)
	assert.NotSame(t, sess, again)
	assert.Equal(t, "hello", again.State().Window[0].Content)
}

func persistedSession(t *testing.T, p *fakePersister, r *CacheStore, id string, turns int) {
	t.Helper()
	ctx := context.Background()
	sess, _, err := r.GetOrCreate(ctx, id)
	require.NoError(t, err)
	for i := 0; i < turns; i++ {
		require.NoError(t, sess.Append(ctx, store.NewTurn(store.RoleUser, "turn")))
	}
	require.True(t, r.Evict(id))
	st, ok := p.state(id)
	require.True(t, ok)
	require.Equal(t, turns, st.TurnCount)
}

func TestCacheStore_UnreadableHistoryIsNotOverwritten(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()
	persistedSession(t, p, r, "abc", 6)

	p.setErrors(errors.New("connection refused"), nil)
	sess, created, err := r.GetOrCreate(ctx, "abc")

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
	assert.Nil(t, sess)
	assert.False(t, created)
	assert.Equal(t, 0, r.Len())

	err = r.WithLock(ctx, "abc", func(*Session) error { return nil })
	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))

	st, _ := p.state("abc")
	assert.Equal(t, 6, st.TurnCount)

	p.setErrors(nil, nil)
	sess, created, err = r.GetOrCreate(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 6, sess.State().TurnCount)
}

func TestCacheStore_GeneratedIdSkipsPersister(t *testing.T) {
	p := newFakePersister()
	p.setErrors(errors.New("connection refused"), nil)
	r := NewCacheStore(testConfig(), Deps{Persister: p})

	sess, created, err := r.GetOrCreate(context.Background(), "")

	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, sess.ID())
}

func TestCacheStore_GetReportsLoadFailure(t *testing.T) {
	p := newFakePersister()
	p.setErrors(errors.New("connection refused"), nil)
	r := NewCacheStore(testConfig(), Deps{Persister: p})

	_, err := r.Get(context.Background(), "abc")

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
	assert.False(t, errors.Is(err, rag.ErrSessionNotFound))
}

func TestCacheStore_DeletePersistedOnly(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()
	persistedSession(t, p, r, "abc", 2)

	require.NoError(t, r.Delete(ctx, "abc"))

	_, ok := p.state("abc")
	assert.False(t, ok)
}

func TestCacheStore_DeleteReportsLoadFailure(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()
	persistedSession(t, p, r, "abc", 2)

	p.setErrors(errors.New("connection refused"), nil)
	err := r.Delete(ctx, "abc")

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
	assert.False(t, errors.Is(err, rag.ErrSessionNotFound))
	_, ok := p.state("abc")
	assert.True(t, ok)
}

func TestCacheStore_DeleteReportsPersisterFailure(t *testing.T) {
	p := newFakePersister()
	r := NewCacheStore(testConfig(), Deps{Persister: p})
	ctx := context.Background()

	sess, _, err := r.GetOrCreate(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, sess.Append(ctx, store.NewTurn(store.RoleUser, "hi")))

	p.setErrors(nil, errors.New("read only"))
	err = r.Delete(ctx, "abc")

	assert.True(t, errors.Is(err, rag.ErrCollaboratorUnavailable))
	assert.Equal(t, store.PhaseClosed, sess.State().Phase)
}
