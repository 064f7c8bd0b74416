package adapters

import "fmt"

// LlamaConfig configures local GGUF model loading. It is shared by the
// llama.cpp-backed provider and the stub used in builds without the bindings.
type LlamaConfig struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
}

// validateLlamaConfig checks that cfg can load a model.
func validateLlamaConfig(cfg LlamaConfig) error {
	if cfg.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if cfg.ContextSize <= 0 {
		return fmt.Errorf("context size must be positive, got %d", cfg.ContextSize)
	}
	if cfg.GPULayers < 0 {
		return fmt.Errorf("GPU layers cannot be negative, got %d", cfg.GPULayers)
	}
	return nil
}
