// Package redisstore keeps session snapshots in Redis as JSON documents that
// expire with the session TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/store"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "zero-entropy:session:"

type SessionPersister struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ memory.Persister = (*SessionPersister)(nil)

// NewSessionPersister stores snapshots with the given ttl. A zero ttl keeps
// them forever.
func NewSessionPersister(rdb *redis.Client, ttl time.Duration) *SessionPersister {
	return &SessionPersister{rdb: rdb, ttl: ttl}
}

func Key(sessionID string) string {
	return keyPrefix + sessionID
}

func (p *SessionPersister) Save(ctx context.Context, state store.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", state.SessionID, err)
	}
	return p.rdb.Set(ctx, Key(state.SessionID), payload, p.ttl).Err()
}

func (p *SessionPersister) Load(ctx context.Context, sessionID string) (*store.SessionState, error) {
	payload, err := p.rdb.Get(ctx, Key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state store.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

func (p *SessionPersister) Delete(ctx context.Context, sessionID string) error {
	return p.rdb.Del(ctx, Key(sessionID)).Err()
}
