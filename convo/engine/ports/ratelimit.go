package engineports

import "context"

// RateLimiter gates turn admission per key (typically the session id).
// Acquire returns a release func that must be called when the turn finishes,
// or an error when the key is over its budget.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
