package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// OpenAIProvider talks to an OpenAI-compatible chat completion API. Any
// endpoint speaking the same protocol works by pointing baseURL at it; the
// label is what spoken diagnostics call the backend.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	label      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider client. An empty label defaults to
// "OpenAI".
func NewOpenAIProvider(baseURL, apiKey, label string, timeout time.Duration) *OpenAIProvider {
	if label == "" {
		label = "OpenAI"
	}
	return &OpenAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		label:   label,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatCompletionRequest is the wire shape of one completion call. The
// sampling fields are always serialized, zero or not, so the backend sees
// the same request the engine was configured with.
type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []ports.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	TopP        float64         `json:"top_p"`
	Temperature float64         `json:"temperature"`
	User        string          `json:"user,omitempty"`
}

type chatCompletionResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []choice      `json:"choices"`
	Usage   *usagePayload `json:"usage,omitempty"`
}

type choice struct {
	Index        int            `json:"index"`
	Message      *ports.Message `json:"message,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type modelsResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// Complete sends the message list and returns the first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, msgs []ports.Message, opts ports.Options) (ports.Completion, error) {
	payload := chatCompletionRequest{
		Model:       opts.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Temperature: opts.Temperature,
		User:        opts.User,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return ports.Completion{}, p.apiError(resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return ports.Completion{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return ports.Completion{}, fmt.Errorf("response contained no choices")
	}

	completion := ports.Completion{
		Text:  result.Choices[0].Message.Content,
		Model: result.Model,
	}
	if result.Usage != nil {
		completion.Usage = &ports.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}
	return completion, nil
}

// ListModels retrieves the ids of models the backend offers.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp.StatusCode, respBody)
	}

	var result modelsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	ids := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Name returns the configured backend label.
func (p *OpenAIProvider) Name() string {
	return p.label
}

func (p *OpenAIProvider) apiError(status int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("chat API error [%d]: %s (type: %s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("chat API error [%d]: %s", status, string(body))
}

func (p *OpenAIProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// Ensure OpenAIProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIProvider)(nil)
