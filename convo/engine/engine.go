package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// TurnState is the terminal state a turn finished in.
type TurnState string

const (
	TurnStateDone           TurnState = "done"
	TurnStateRateLimited    TurnState = "rate_limited"
	TurnStateRenderFailed   TurnState = "prompt_render_failed"
	TurnStateProviderFailed TurnState = "provider_failed"
	TurnStateParseFailed    TurnState = "parse_failed"
	TurnStateDispatchFailed TurnState = "dispatch_failed"
)

// TurnRequest is one inbound utterance. SessionID may be empty or unknown;
// either way the turn runs under a freshly minted session. Language is
// carried through for observability only.
type TurnRequest struct {
	Text      string
	SessionID string
	Language  string
}

// TurnResult is the outcome of one turn. Speech always holds something
// speakable, diagnostic text included; callers never see a raw error unless
// they look at Err. SessionID identifies the session for follow-up turns.
type TurnResult struct {
	Speech    string
	SessionID string
	State     TurnState
	Err       error
}

// TurnConfig is the per-turn snapshot of tunable settings. The engine asks
// for a fresh snapshot at the start of every turn, so option changes apply
// to the next utterance without a restart.
type TurnConfig struct {
	Model          string
	MaxTokens      int
	TopP           float64
	Temperature    float64
	PromptTemplate string
	RenderVars     map[string]any
}

// ConversationEngine runs the turn lifecycle: admit, build prompt, complete,
// commit history, parse, dispatch. Failures become spoken diagnostics, never
// panics or raw errors to the caller.
//
// History commit ordering is the engine's central invariant: a provider
// failure commits nothing, while the user message plus raw assistant reply
// are appended exactly once for every turn that obtained a completion,
// before parsing. Parse and dispatch failures therefore stay in history and
// replay as context on the next turn.
type ConversationEngine struct {
	store      ports.SessionStore
	provider   ports.Provider
	builder    *PromptBuilder
	parser     *OutputParser
	dispatcher *CommandDispatcher
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	metrics    *TurnMetrics
	logger     zerolog.Logger
	configFn   func() TurnConfig

	lockMu sync.Mutex
	locks  map[string]*sessionLock

	closers []func() error
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewConversationEngine creates an engine with all collaborators supplied.
// The factory wires no-op implementations for optional ones.
func NewConversationEngine(
	store ports.SessionStore,
	provider ports.Provider,
	builder *PromptBuilder,
	parser *OutputParser,
	dispatcher *CommandDispatcher,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	metrics *TurnMetrics,
	logger zerolog.Logger,
	configFn func() TurnConfig,
) *ConversationEngine {
	return &ConversationEngine{
		store:      store,
		provider:   provider,
		builder:    builder,
		parser:     parser,
		dispatcher: dispatcher,
		limiter:    limiter,
		tracer:     tracer,
		metrics:    metrics,
		logger:     logger,
		configFn:   configFn,
		locks:      make(map[string]*sessionLock),
	}
}

// Metrics exposes the engine's counters for health/ops surfaces.
func (e *ConversationEngine) Metrics() *TurnMetrics {
	return e.metrics
}

// Provider exposes the completion backend, used by health probes.
func (e *ConversationEngine) Provider() ports.Provider {
	return e.provider
}

// Store exposes the session store, used by health probes.
func (e *ConversationEngine) Store() ports.SessionStore {
	return e.store
}

// Close releases resources attached during wiring, such as template
// watchers, store janitors, and local model handles.
func (e *ConversationEngine) Close() error {
	var firstErr error
	for _, closer := range e.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProcessTurn runs one utterance through the full lifecycle and always
// returns a TurnResult, never an error.
func (e *ConversationEngine) ProcessTurn(ctx context.Context, req TurnRequest) TurnResult {
	start := time.Now()
	var providerDur time.Duration
	cfg := e.configFn()

	ctx, endSpan := e.tracer.StartSpan(ctx, "conversation.turn", map[string]any{
		"session_id": req.SessionID,
		"language":   req.Language,
	})

	sessionID := req.SessionID

	finish := func(state TurnState, speech string, err error) TurnResult {
		e.metrics.RecordTurn(state, time.Since(start), providerDur)
		endSpan(err)
		if err != nil {
			e.logger.Warn().Err(err).Str("session_id", sessionID).Str("state", string(state)).Msg("turn finished with failure")
		} else {
			e.logger.Debug().Str("session_id", sessionID).Dur("took", time.Since(start)).Msg("turn completed")
		}
		return TurnResult{Speech: speech, SessionID: sessionID, State: state, Err: err}
	}

	release, err := e.limiter.Acquire(ctx, req.SessionID)
	if err != nil {
		return finish(TurnStateRateLimited,
			"Sorry, I'm handling too many requests right now. Please try again shortly.", err)
	}
	defer release()

	// Turns within one session id run strictly one at a time; distinct
	// sessions proceed in parallel.
	unlock := e.lockSession(req.SessionID)
	defer unlock()

	messages, sessionID, isNew, err := e.buildPrompt(ctx, req, cfg)
	if err != nil {
		var renderErr *TemplateRenderError
		if errors.As(err, &renderErr) {
			return finish(TurnStateRenderFailed,
				fmt.Sprintf("Sorry, I had a problem with my template: %v", renderErr.Err), err)
		}
		return finish(TurnStateRenderFailed,
			fmt.Sprintf("Sorry, I had a problem recalling our conversation: %v", err), err)
	}

	e.logger.Debug().Str("model", cfg.Model).Str("session_id", sessionID).Int("messages", len(messages)).Msg("sending prompt")

	providerStart := time.Now()
	completion, err := e.provider.Complete(ctx, messages, ports.Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		User:        sessionID,
	})
	providerDur = time.Since(providerStart)
	if err != nil {
		// Nothing was committed, so a retry replays the original prompt
		// unchanged.
		provErr := &ProviderError{Provider: e.provider.Name(), Err: err}
		return finish(TurnStateProviderFailed,
			fmt.Sprintf("Sorry, I had a problem talking to %s: %v", e.provider.Name(), err), provErr)
	}

	raw := completion.Text
	e.metrics.RecordUsage(completion.Usage)
	e.logger.Debug().Str("session_id", sessionID).Str("response", raw).Msg("model replied")

	e.commitHistory(ctx, sessionID, isNew, messages, raw)

	parsed, err := e.parser.Parse(raw)
	if err != nil {
		cause := err
		var parseErr *ResponseParseError
		if errors.As(err, &parseErr) {
			cause = parseErr.Err
		}
		return finish(TurnStateParseFailed,
			fmt.Sprintf("Unable to parse: %s\nError: %v", raw, cause), err)
	}

	// TODO: move command extraction to provider-native tool calls.
	if parsed.Command != nil {
		if err := e.dispatcher.Dispatch(ctx, parsed.Command); err != nil {
			var dispatchErr *DispatchError
			if errors.As(err, &dispatchErr) {
				return finish(TurnStateDispatchFailed,
					fmt.Sprintf("Unable to execute: (%s, %s, %v)\nError: %v",
						dispatchErr.Domain, dispatchErr.Service, dispatchErr.Data, dispatchErr.Err), err)
			}
			return finish(TurnStateDispatchFailed,
				fmt.Sprintf("Unable to execute command\nError: %v", err), err)
		}
		e.metrics.RecordDispatch()
		e.tracer.Event(ctx, "command_dispatched", map[string]any{
			"domain":  parsed.Command["domain"],
			"service": parsed.Command["service"],
		})
	}

	return finish(TurnStateDone, parsed.Comment, nil)
}

func (e *ConversationEngine) buildPrompt(ctx context.Context, req TurnRequest, cfg TurnConfig) ([]ports.Message, string, bool, error) {
	return e.builder.Build(ctx, req.SessionID, cfg.PromptTemplate, req.Text, cfg.RenderVars)
}

// commitHistory appends the turn's new user message plus the raw assistant
// reply. For a fresh session that includes the seed, so the store gains four
// messages; an existing session gains two. Store failures are logged and the
// turn continues, trading durability for an answered user.
func (e *ConversationEngine) commitHistory(ctx context.Context, sessionID string, isNew bool, messages []ports.Message, raw string) {
	commit := make([]ports.Message, 0, len(messages)+1)
	if isNew {
		commit = append(commit, messages...)
	} else {
		commit = append(commit, messages[len(messages)-1])
	}
	commit = append(commit, ports.Message{Role: ports.RoleAssistant, Content: raw})

	if err := e.store.Append(ctx, sessionID, commit); err != nil {
		e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist turn history")
		return
	}
	e.tracer.Event(ctx, "history_committed", map[string]any{
		"session_id": sessionID,
		"messages":   len(commit),
	})
}

// lockSession serializes turns that target the same session id. Empty ids
// mint a fresh session and cannot contend, so they skip locking.
func (e *ConversationEngine) lockSession(id string) func() {
	if id == "" {
		return func() {}
	}

	e.lockMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.lockMu.Unlock()
	}
}
