package adapters

import (
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// MemorySessionStore keeps session history in process memory. It is the
// default store: sessions survive reconfiguration but not a restart, which
// matches how a voice assistant treats conversation context.
//
// Eviction is optional. With a TTL set, sessions idle past it are removed by
// a janitor goroutine; with maxSessions set, the least recently touched
// session is dropped when a new one would exceed the cap.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	ttl         time.Duration
	maxSessions int

	stopOnce sync.Once
	stopCh   chan struct{}
}

type sessionEntry struct {
	messages []ports.Message
	touched  time.Time
}

// NewMemorySessionStore creates a store that never evicts.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*sessionEntry),
		stopCh:   make(chan struct{}),
	}
}

// NewEvictingMemorySessionStore creates a store with idle-TTL and session
// count bounds. Zero disables the corresponding bound. Stop must be called
// to end the janitor when a TTL is set.
func NewEvictingMemorySessionStore(ttl time.Duration, maxSessions int) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions:    make(map[string]*sessionEntry),
		ttl:         ttl,
		maxSessions: maxSessions,
		stopCh:      make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	return s
}

// Get returns a copy of the session's history.
func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) ([]ports.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	entry.touched = time.Now()

	out := make([]ports.Message, len(entry.messages))
	copy(out, entry.messages)
	return out, nil
}

// Append extends the session's history, creating it when absent.
func (s *MemorySessionStore) Append(ctx context.Context, sessionID string, msgs []ports.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
			s.evictOldestLocked()
		}
		entry = &sessionEntry{}
		s.sessions[sessionID] = entry
	}
	entry.messages = append(entry.messages, msgs...)
	entry.touched = time.Now()
	return nil
}

// Len reports the number of live sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop ends the janitor goroutine. Safe to call multiple times.
func (s *MemorySessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemorySessionStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range s.sessions {
		if oldestID == "" || entry.touched.Before(oldest) {
			oldestID = id
			oldest = entry.touched
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

func (s *MemorySessionStore) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.expireIdle()
		}
	}
}

func (s *MemorySessionStore) expireIdle() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		if entry.touched.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// Ensure MemorySessionStore implements the SessionStore interface.
var _ ports.SessionStore = (*MemorySessionStore)(nil)
