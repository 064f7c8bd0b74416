package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// CachingSessionStore fronts another SessionStore with a read-through cache
// of encoded histories. Reads that hit skip the backing store entirely;
// Append writes through and drops the cached entry so the next read reloads
// the authoritative history.
type CachingSessionStore struct {
	inner      ports.SessionStore
	cache      ports.Cache
	ttlSeconds int
}

// NewCachingSessionStore decorates inner with cache. ttlSeconds bounds how
// long a cached history may serve reads; <= 0 keeps entries until evicted.
func NewCachingSessionStore(inner ports.SessionStore, cache ports.Cache, ttlSeconds int) *CachingSessionStore {
	return &CachingSessionStore{inner: inner, cache: cache, ttlSeconds: ttlSeconds}
}

func (s *CachingSessionStore) Get(ctx context.Context, sessionID string) ([]ports.Message, error) {
	key := cacheKey(sessionID)

	if encoded, ok := s.cache.Get(ctx, key); ok {
		var messages []ports.Message
		if err := json.Unmarshal(encoded, &messages); err == nil {
			return messages, nil
		}
		// Unreadable entry: drop it and fall back to the backing store.
		_ = s.cache.Delete(ctx, key)
	}

	messages, err := s.inner.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(messages); err == nil {
		_ = s.cache.Set(ctx, key, encoded, s.ttlSeconds)
	}
	return messages, nil
}

func (s *CachingSessionStore) Append(ctx context.Context, sessionID string, msgs []ports.Message) error {
	if err := s.inner.Append(ctx, sessionID, msgs); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey(sessionID)); err != nil {
		return fmt.Errorf("invalidate cached session %s: %w", sessionID, err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return "session:" + sessionID
}

// Ensure CachingSessionStore implements the SessionStore interface.
var _ ports.SessionStore = (*CachingSessionStore)(nil)
