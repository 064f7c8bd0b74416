//go:build !llama || no_llama

package adapters

import (
	"context"
	"fmt"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// Placeholder for builds without the llama.cpp bindings.
var errLlamaUnavailable = fmt.Errorf("llama.cpp not available in this build")

// LlamaProvider is a stub for builds without llama.cpp support. Rebuild
// with -tags llama to run local GGUF models.
type LlamaProvider struct{}

// NewLlamaProvider always fails in this build.
func NewLlamaProvider(cfg LlamaConfig) (*LlamaProvider, error) {
	return nil, errLlamaUnavailable
}

func (p *LlamaProvider) Complete(ctx context.Context, msgs []ports.Message, opts ports.Options) (ports.Completion, error) {
	return ports.Completion{}, errLlamaUnavailable
}

func (p *LlamaProvider) ListModels(ctx context.Context) ([]string, error) {
	return nil, errLlamaUnavailable
}

func (p *LlamaProvider) Name() string { return "llama.cpp" }

// Close is a no-op in this build.
func (p *LlamaProvider) Close() error { return nil }

// Ensure LlamaProvider implements the Provider interface.
var _ ports.Provider = (*LlamaProvider)(nil)
