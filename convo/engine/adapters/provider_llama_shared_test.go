package adapters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateLlamaConfig_AcceptsCompleteConfig(t *testing.T) {
	err := validateLlamaConfig(LlamaConfig{
		ModelPath:   "/models/tiny.gguf",
		ContextSize: 2048,
		GPULayers:   0,
	})
	require.NoError(t, err)
}

func TestValidateLlamaConfig_RejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  LlamaConfig
		want string
	}{
		{
			name: "empty model path",
			cfg:  LlamaConfig{ContextSize: 2048},
			want: "model path cannot be empty",
		},
		{
			name: "nonpositive context size",
			cfg:  LlamaConfig{ModelPath: "/models/tiny.gguf", ContextSize: 0},
			want: "context size must be positive",
		},
		{
			name: "negative gpu layers",
			cfg:  LlamaConfig{ModelPath: "/models/tiny.gguf", ContextSize: 2048, GPULayers: -1},
			want: "GPU layers cannot be negative",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateLlamaConfig(tc.cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
