package engineports

import (
	"context"
)

// Options controls sampling and accounting for one completion call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	// User is an opaque end-user identifier forwarded to the provider;
	// the engine passes the session id so provider-side abuse tracking
	// groups requests per conversation.
	User string
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response. Text is the first choice's message
// content; anything else the provider returned is dropped at this boundary.
type Completion struct {
	Text  string
	Model string
	Usage *Usage
}

// Provider is the abstraction for the chat-completion backend. Complete is
// the single suspension point of a turn; implementations must honor ctx
// cancellation and return rather than panic on any provider-side failure.
type Provider interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (Completion, error)
	// ListModels probes the backend for available model ids. Used by
	// healthchecks to validate credentials and reachability.
	ListModels(ctx context.Context) ([]string, error)
	// Name is the human-readable backend label used in spoken diagnostics.
	Name() string
}
