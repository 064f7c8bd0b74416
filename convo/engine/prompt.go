package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/google/uuid"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// instructionSuffix is appended verbatim to every user utterance before it
// reaches the model. The exact wording, typo and trailing comma included, is
// what deployed prompts were tuned against; do not correct it.
const instructionSuffix = " Answer in syntactially perfect json and only json,"

// seedAssistantReply primes a new session with an example of the reply
// contract so the model mirrors the shape from its first real turn.
const seedAssistantReply = `{"comment":"Got it!"}`

// PromptBuilder assembles the message list for one turn. Known sessions get
// their stored history replayed plus the new utterance; unknown or empty
// session ids start a fresh session seeded with the rendered system prompt.
type PromptBuilder struct {
	store ports.SessionStore
}

// NewPromptBuilder creates a builder over the given session store.
func NewPromptBuilder(store ports.SessionStore) *PromptBuilder {
	return &PromptBuilder{store: store}
}

// Build returns the messages to send to the model, the session id the turn
// runs under, and whether that session was created by this call.
//
// A session id the store does not recognize is treated the same as an empty
// one: a fresh id is minted and a new session is seeded. The fresh id is
// minted before the template renders, so render failures still report a
// usable session id to the caller. Build never writes to the store; the
// engine commits history only after a completion succeeds.
func (b *PromptBuilder) Build(ctx context.Context, sessionID, rawTemplate, userText string, vars map[string]any) ([]ports.Message, string, bool, error) {
	newMessage := ports.Message{
		Role:    ports.RoleUser,
		Content: userText + instructionSuffix,
	}

	if sessionID != "" {
		history, err := b.store.Get(ctx, sessionID)
		switch {
		case err == nil:
			messages := make([]ports.Message, 0, len(history)+1)
			messages = append(messages, history...)
			messages = append(messages, newMessage)
			return messages, sessionID, false, nil
		case errors.Is(err, ports.ErrSessionNotFound):
			// Unknown id: fall through and start over with a fresh one.
		default:
			return nil, sessionID, false, fmt.Errorf("load session history: %w", err)
		}
	}

	freshID := uuid.New().String()

	rendered, err := renderPrompt(rawTemplate, vars)
	if err != nil {
		return nil, freshID, true, &TemplateRenderError{Err: err}
	}

	messages := []ports.Message{
		{Role: ports.RoleUser, Content: rendered},
		{Role: ports.RoleAssistant, Content: seedAssistantReply},
		newMessage,
	}
	return messages, freshID, true, nil
}

// renderPrompt executes the system-prompt template. Missing variable
// references are render errors, not "<no value>" text in the prompt.
func renderPrompt(raw string, vars map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(raw)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
