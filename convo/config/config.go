package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/convoengine/convo"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Provider ProviderConfig `mapstructure:"provider"`
	Store    StoreConfig    `mapstructure:"store"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// AgentConfig stores the per-turn conversation settings. These are read
// fresh for every turn, so config file changes apply without a restart.
type AgentConfig struct {
	ChatModel      string  `mapstructure:"chat_model"`      // Model id sent to the provider
	MaxTokens      int     `mapstructure:"max_tokens"`      // Completion token cap
	Temperature    float64 `mapstructure:"temperature"`     // Sampling temperature
	TopP           float64 `mapstructure:"top_p"`           // Nucleus sampling
	PromptTemplate string  `mapstructure:"prompt_template"` // Inline system prompt template
	PromptFile     string  `mapstructure:"prompt_file"`     // Template file path, overrides prompt_template when set
	SiteName       string  `mapstructure:"site_name"`       // Bound to ha_name during template rendering
}

// ProviderConfig stores completion backend connection details.
type ProviderConfig struct {
	Kind           string `mapstructure:"kind"`            // "openai" or "llama"
	BaseURL        string `mapstructure:"base_url"`        // OpenAI-compatible endpoint
	APIKeyEnv      string `mapstructure:"api_key_env"`     // Env var holding the API key
	Label          string `mapstructure:"label"`           // Backend name used in spoken diagnostics
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // HTTP timeout per completion call

	// Local gguf inference (kind "llama")
	ModelPath   string `mapstructure:"model_path"`   // Path to gguf weights
	ContextSize int    `mapstructure:"context_size"` // Model context window
	GPULayers   int    `mapstructure:"gpu_layers"`   // Layers offloaded to GPU
}

// StoreConfig stores session persistence settings.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"`         // "memory" or "libsql"
	LibSQLDataDir string `mapstructure:"libsql_data_dir"` // Directory for database files

	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"` // Idle eviction for memory backend, 0 keeps forever
	MaxSessions       int `mapstructure:"max_sessions"`        // Session count bound for memory backend, 0 unbounded

	// Read cache in front of the libsql backend
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`
}

// EngineConfig stores turn admission and safety settings.
type EngineConfig struct {
	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity per session
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedServices  []string `mapstructure:"allowed_services"` // "domain.service" allowlist, empty allows all
	BlockedWords     []string `mapstructure:"blocked_words"`    // Words rejected in command data

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Agent defaults
	viper.SetDefault("agent.chat_model", "gpt-3.5-turbo")
	viper.SetDefault("agent.max_tokens", 150)
	viper.SetDefault("agent.temperature", 0.5)
	viper.SetDefault("agent.top_p", 1.0)
	viper.SetDefault("agent.prompt_template", internal.DefaultPromptTemplate)
	viper.SetDefault("agent.prompt_file", "")
	viper.SetDefault("agent.site_name", "Home")

	// Provider defaults
	viper.SetDefault("provider.kind", "openai")
	viper.SetDefault("provider.base_url", "https://api.openai.com")
	viper.SetDefault("provider.api_key_env", "OPENAI_API_KEY")
	viper.SetDefault("provider.label", "OpenAI")
	viper.SetDefault("provider.timeout_seconds", 30)
	viper.SetDefault("provider.model_path", "")
	viper.SetDefault("provider.context_size", 2048)
	viper.SetDefault("provider.gpu_layers", 0)

	// Store defaults
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.libsql_data_dir", internal.DefaultDatabaseDir)
	viper.SetDefault("store.session_ttl_minutes", 0)
	viper.SetDefault("store.max_sessions", 0)
	viper.SetDefault("store.cache_enabled", true)
	viper.SetDefault("store.cache_capacity", 1000)
	viper.SetDefault("store.cache_ttl_seconds", 3600) // 1 hour

	// Engine defaults
	viper.SetDefault("engine.rate_limit_enabled", true)
	viper.SetDefault("engine.rate_limit_capacity", 10)
	viper.SetDefault("engine.rate_limit_refill_rate", "1s")
	viper.SetDefault("engine.enable_guardrails", false)
	viper.SetDefault("engine.allowed_services", []string{})
	viper.SetDefault("engine.blocked_words", []string{})
	viper.SetDefault("engine.enable_tracing", true)

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. agent.chat_model becomes AGENT_CHAT_MODEL
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}

// AgentSnapshot reads the agent section from live viper state, so
// environment overrides apply to the next turn without a restart.
func AgentSnapshot() AgentConfig {
	return AgentConfig{
		ChatModel:      viper.GetString("agent.chat_model"),
		MaxTokens:      viper.GetInt("agent.max_tokens"),
		Temperature:    viper.GetFloat64("agent.temperature"),
		TopP:           viper.GetFloat64("agent.top_p"),
		PromptTemplate: viper.GetString("agent.prompt_template"),
		PromptFile:     viper.GetString("agent.prompt_file"),
		SiteName:       viper.GetString("agent.site_name"),
	}
}
