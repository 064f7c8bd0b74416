package adapters

import (
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// TokenBucket is a per-key token bucket limiter used to gate turn admission.
// Each key (the engine passes the session id) gets its own bucket; tokens
// refill over time and are returned when a turn's release func runs, so the
// bucket bounds both burst and in-flight turns per key.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration // time between token refills
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a limiter allowing capacity tokens per key,
// refilling one token per refillRate.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire takes a token for key or fails with ErrRateLimitExceeded.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     tb.capacity,
			lastRefill: time.Now(),
		}
		tb.buckets[key] = b
	}

	elapsed := time.Since(b.lastRefill)
	tokensToAdd := int(elapsed / tb.refillRate)
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return nil, ErrRateLimitExceeded
	}
	b.tokens--

	release = func() {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		if b, exists := tb.buckets[key]; exists {
			b.tokens = min(b.tokens+1, tb.capacity)
		}
	}
	return release, nil
}

// ErrRateLimitExceeded is returned when a key's bucket is empty.
var ErrRateLimitExceeded = &RateLimitError{Message: "rate limit exceeded"}

// RateLimitError distinguishes admission failures from other errors.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Ensure TokenBucket implements the RateLimiter interface.
var _ ports.RateLimiter = (*TokenBucket)(nil)
