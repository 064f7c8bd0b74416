//go:build llama && !no_llama

package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-skynet/go-llama.cpp"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// LlamaProvider runs completions against a local GGUF model through
// llama.cpp. A single loaded instance serves all turns; Predict calls are
// serialized because llama.cpp contexts are not safe for concurrent use.
type LlamaProvider struct {
	mu    sync.Mutex
	model *llama.LLama
}

// NewLlamaProvider loads the GGUF model at cfg.ModelPath.
func NewLlamaProvider(cfg LlamaConfig) (*LlamaProvider, error) {
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 2048
	}
	if err := validateLlamaConfig(cfg); err != nil {
		return nil, err
	}

	model, err := llama.New(cfg.ModelPath,
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("load gguf model: %w", err)
	}
	return &LlamaProvider{model: model}, nil
}

// Complete renders the chat as a plain prompt and predicts one reply.
func (p *LlamaProvider) Complete(ctx context.Context, msgs []ports.Message, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.Completion{}, err
	}
	if p.model == nil {
		return ports.Completion{}, fmt.Errorf("provider is closed")
	}

	text, err := p.model.Predict(flattenChat(msgs),
		llama.SetTemperature(float32(opts.Temperature)),
		llama.SetTopP(float32(opts.TopP)),
		llama.SetTokens(opts.MaxTokens),
		llama.SetRepeat(1),
	)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("predict: %w", err)
	}
	return ports.Completion{Text: strings.TrimSpace(text), Model: opts.Model}, nil
}

// ListModels reports the single loaded model.
func (p *LlamaProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"local-gguf"}, nil
}

// Name identifies the backend in spoken diagnostics.
func (p *LlamaProvider) Name() string { return "llama.cpp" }

// Close frees the underlying llama.cpp context.
func (p *LlamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

// flattenChat renders role-tagged messages into a single prompt ending with
// the assistant turn marker.
func flattenChat(msgs []ports.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}

// Ensure LlamaProvider implements the Provider interface.
var _ ports.Provider = (*LlamaProvider)(nil)
