package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/convoengine/convo/config"
	"github.com/ZanzyTHEbar/convoengine/convo/engine"
	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// recordingCaller collects dispatched service names.
type recordingCaller struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCaller) Call(ctx context.Context, domain, service string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, domain+"."+service)
	return nil
}

func (c *recordingCaller) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// fakeBackend is an OpenAI-compatible endpoint returning a fixed reply.
type fakeBackend struct {
	mu          sync.Mutex
	reply       string
	lastMsgsLen int
}

func (b *fakeBackend) setReply(reply string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply = reply
}

func (b *fakeBackend) lastMessageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMsgsLen
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []ports.Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		b.lastMsgsLen = len(req.Messages)
		reply := b.reply
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"model": "gpt-3.5-turbo",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": %s}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`, strconv.Quote(reply))
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object": "list", "data": [{"id": "gpt-3.5-turbo"}]}`)
	})
	return mux
}

func serviceConfig(baseURL string) *config.Config {
	return &config.Config{
		Agent: config.AgentConfig{
			ChatModel:   "gpt-3.5-turbo",
			MaxTokens:   150,
			Temperature: 0.5,
			TopP:        1.0,
			SiteName:    "Home",
		},
		Provider: config.ProviderConfig{
			Kind:           "openai",
			BaseURL:        baseURL,
			APIKeyEnv:      "CONVO_TEST_API_KEY",
			Label:          "TestBackend",
			TimeoutSeconds: 5,
		},
		Store: config.StoreConfig{
			Backend: "memory",
		},
		Engine: config.EngineConfig{},
	}
}

func loadDefaults(t *testing.T) {
	t.Helper()
	_, err := config.LoadConfig("")
	require.NoError(t, err)
}

func TestService_ProcessTextEndToEnd(t *testing.T) {
	loadDefaults(t)
	t.Setenv("CONVO_TEST_API_KEY", "sk-test")

	backend := &fakeBackend{}
	backend.setReply(`{"comment": "Done!", "command": {"domain": "light", "service": "turn_on", "data": {"entity_id": "light.porch"}}}`)
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	caller := &recordingCaller{}
	svc, err := NewService(serviceConfig(srv.URL), caller, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	result := svc.ProcessText(context.Background(), "turn on the porch light", "")

	assert.Equal(t, engine.TurnStateDone, result.State)
	assert.Equal(t, "Done!", result.Speech)
	assert.NotEmpty(t, result.SessionID)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{"light.turn_on"}, caller.called())

	// A first turn carries the three seed messages.
	assert.Equal(t, 3, backend.lastMessageCount())
}

func TestService_SessionContinuity(t *testing.T) {
	loadDefaults(t)

	backend := &fakeBackend{}
	backend.setReply(`{"comment": "Hello!"}`)
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	svc, err := NewService(serviceConfig(srv.URL), nil, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	first := svc.ProcessText(context.Background(), "hello", "")
	require.Equal(t, engine.TurnStateDone, first.State)

	second := svc.ProcessText(context.Background(), "how are you", first.SessionID)
	require.Equal(t, engine.TurnStateDone, second.State)
	assert.Equal(t, first.SessionID, second.SessionID)

	// Seed three, assistant reply, then the follow-up user message.
	assert.Equal(t, 5, backend.lastMessageCount())
}

func TestService_ProcessTurnCarriesLanguage(t *testing.T) {
	loadDefaults(t)

	backend := &fakeBackend{}
	backend.setReply(`{"comment": "Hei!"}`)
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	svc, err := NewService(serviceConfig(srv.URL), nil, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	result := svc.ProcessTurn(context.Background(), engine.TurnRequest{Text: "hei", Language: "fi"})
	assert.Equal(t, engine.TurnStateDone, result.State)
	assert.Equal(t, "Hei!", result.Speech)
}

func TestService_Healthcheck(t *testing.T) {
	loadDefaults(t)

	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())

	svc, err := NewService(serviceConfig(srv.URL), nil, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	assert.NoError(t, svc.Healthcheck(context.Background()))

	// With the backend gone, the provider probe must fail.
	srv.Close()
	err = svc.Healthcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestService_MetricsAccumulate(t *testing.T) {
	loadDefaults(t)

	backend := &fakeBackend{}
	backend.setReply(`{"comment": "Hi."}`)
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	svc, err := NewService(serviceConfig(srv.URL), nil, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	svc.ProcessText(context.Background(), "hello", "")
	svc.ProcessText(context.Background(), "hello again", "")

	summary := svc.Metrics()
	assert.Equal(t, int64(2), summary.TurnsTotal)
	assert.Equal(t, int64(2), summary.Outcomes[engine.TurnStateDone])
	assert.Equal(t, int64(20), summary.PromptTokens)
	assert.Equal(t, int64(10), summary.CompletionTokens)
}
