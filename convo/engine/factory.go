package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/convoengine/convo/config"
	"github.com/ZanzyTHEbar/convoengine/convo/engine/adapters"
	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// Factory creates and wires engine components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, required only for the libsql store backend
	caller ports.ServiceCaller
	logger zerolog.Logger

	closers []func() error
}

// NewFactory creates a new engine factory. caller is the host's service
// surface; nil wires an empty registry so dispatches fail as unregistered
// rather than panicking.
func NewFactory(cfg *config.Config, db *sql.DB, caller ports.ServiceCaller, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		caller: caller,
		logger: logger,
	}
}

// CreateEngine creates a fully wired ConversationEngine from config.
func (f *Factory) CreateEngine() (*ConversationEngine, error) {
	f.closers = nil

	store, err := f.createStore()
	if err != nil {
		return nil, err
	}

	provider, err := f.createProvider()
	if err != nil {
		return nil, err
	}

	source, err := f.createTemplateSource()
	if err != nil {
		return nil, err
	}

	limiter := f.createRateLimiter()
	tracer := f.createTracer()
	guardrails := f.createGuardrails()

	caller := f.caller
	if caller == nil {
		caller = adapters.NewServiceRegistry()
	}

	f.warnOnOddSettings(config.AgentSnapshot())

	configFn := func() TurnConfig {
		snap := clampTurnSettings(config.AgentSnapshot())
		template := snap.PromptTemplate
		if source != nil {
			template = source.Template()
		}
		return TurnConfig{
			Model:          snap.ChatModel,
			MaxTokens:      snap.MaxTokens,
			TopP:           snap.TopP,
			Temperature:    snap.Temperature,
			PromptTemplate: template,
			RenderVars:     map[string]any{"ha_name": snap.SiteName},
		}
	}

	eng := NewConversationEngine(
		store,
		provider,
		NewPromptBuilder(store),
		NewOutputParser(),
		NewCommandDispatcher(caller, guardrails),
		limiter,
		tracer,
		NewTurnMetrics(),
		f.logger,
		configFn,
	)
	eng.closers = f.closers
	return eng, nil
}

// createStore creates a session store adapter from config.
func (f *Factory) createStore() (ports.SessionStore, error) {
	storeCfg := f.cfg.Store

	switch storeCfg.Backend {
	case "libsql":
		if f.db == nil {
			return nil, fmt.Errorf("store backend %q requires a database handle", storeCfg.Backend)
		}
		var store ports.SessionStore = adapters.NewLibSQLSessionStore(f.db)
		if storeCfg.CacheEnabled {
			cache := adapters.NewLRUCache(storeCfg.CacheCapacity)
			store = adapters.NewCachingSessionStore(store, cache, storeCfg.CacheTTLSeconds)
		}
		return store, nil

	case "memory", "":
		if storeCfg.SessionTTLMinutes > 0 || storeCfg.MaxSessions > 0 {
			mem := adapters.NewEvictingMemorySessionStore(
				time.Duration(storeCfg.SessionTTLMinutes)*time.Minute, storeCfg.MaxSessions)
			f.closers = append(f.closers, func() error { mem.Stop(); return nil })
			return mem, nil
		}
		return adapters.NewMemorySessionStore(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", storeCfg.Backend)
	}
}

// createProvider creates a completion backend adapter from config.
func (f *Factory) createProvider() (ports.Provider, error) {
	provCfg := f.cfg.Provider

	switch provCfg.Kind {
	case "openai", "":
		apiKey := os.Getenv(provCfg.APIKeyEnv)
		if apiKey == "" {
			f.logger.Warn().Str("env", provCfg.APIKeyEnv).Msg("provider API key env is empty, requests will be unauthenticated")
		}
		timeout := time.Duration(provCfg.TimeoutSeconds) * time.Second
		return adapters.NewOpenAIProvider(provCfg.BaseURL, apiKey, provCfg.Label, timeout), nil

	case "llama":
		provider, err := adapters.NewLlamaProvider(adapters.LlamaConfig{
			ModelPath:   provCfg.ModelPath,
			ContextSize: provCfg.ContextSize,
			GPULayers:   provCfg.GPULayers,
		})
		if err != nil {
			return nil, fmt.Errorf("create llama provider: %w", err)
		}
		f.closers = append(f.closers, provider.Close)
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", provCfg.Kind)
	}
}

// createTemplateSource wires the watched prompt file when one is configured.
// Without one the inline template is read live from config each turn.
func (f *Factory) createTemplateSource() (TemplateSource, error) {
	path := f.cfg.Agent.PromptFile
	if path == "" {
		return nil, nil
	}

	source, err := NewFileTemplate(path, f.logger)
	if err != nil {
		return nil, fmt.Errorf("load prompt template: %w", err)
	}
	f.closers = append(f.closers, source.Close)
	return source, nil
}

// createRateLimiter creates a rate limiter adapter from config.
func (f *Factory) createRateLimiter() ports.RateLimiter {
	engCfg := f.cfg.Engine
	if !engCfg.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(engCfg.RateLimitCapacity, engCfg.RateLimitRefillRate)
}

// createTracer creates a tracer adapter from config.
func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Engine.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// createGuardrails builds command guardrails from config, nil when disabled.
func (f *Factory) createGuardrails() *CommandGuardrails {
	engCfg := f.cfg.Engine
	if !engCfg.EnableGuardrails {
		return nil
	}

	guardrails := NewCommandGuardrails()
	for _, name := range engCfg.AllowedServices {
		domain, service, ok := strings.Cut(name, ".")
		if !ok {
			f.logger.Warn().Str("service", name).Msg("allowed_services entry is not domain.service, skipping")
			continue
		}
		guardrails.Allow(domain, service)
	}
	if len(engCfg.BlockedWords) > 0 {
		guardrails.BlockWords(engCfg.BlockedWords...)
	}
	return guardrails
}

// warnOnOddSettings logs once at wiring time for values that will be pinned
// on every turn.
func (f *Factory) warnOnOddSettings(snap config.AgentConfig) {
	if snap.MaxTokens < 1 || snap.MaxTokens > 4096 {
		f.logger.Warn().Int("max_tokens", snap.MaxTokens).Msg("max_tokens outside [1, 4096], value will be pinned")
	}
	if snap.Temperature < 0 || snap.Temperature > 2 {
		f.logger.Warn().Float64("temperature", snap.Temperature).Msg("temperature outside [0, 2], value will be pinned")
	}
	if snap.TopP < 0 || snap.TopP > 1 {
		f.logger.Warn().Float64("top_p", snap.TopP).Msg("top_p outside [0, 1], value will be pinned")
	}
}

// clampTurnSettings pins live-read settings to the ranges completion APIs
// accept.
func clampTurnSettings(snap config.AgentConfig) config.AgentConfig {
	if snap.MaxTokens < 1 {
		snap.MaxTokens = 1
	}
	if snap.MaxTokens > 4096 {
		snap.MaxTokens = 4096
	}
	if snap.Temperature < 0 {
		snap.Temperature = 0
	}
	if snap.Temperature > 2 {
		snap.Temperature = 2
	}
	if snap.TopP < 0 {
		snap.TopP = 0
	}
	if snap.TopP > 1 {
		snap.TopP = 1
	}
	return snap
}

// noOpRateLimiter admits every turn.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer drops all spans and events.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
