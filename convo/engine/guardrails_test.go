package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandGuardrails_DefaultsPassEverything(t *testing.T) {
	guardrails := NewCommandGuardrails()

	err := guardrails.Validate("lock", "unlock", map[string]any{"code": "0000"})
	assert.NoError(t, err)
}

func TestCommandGuardrails_Allowlist(t *testing.T) {
	guardrails := NewCommandGuardrails()
	guardrails.Allow("light", "turn_on")
	guardrails.Allow("light", "turn_off")

	assert.NoError(t, guardrails.Validate("light", "turn_on", nil))
	assert.NoError(t, guardrails.Validate("light", "turn_off", nil))

	err := guardrails.Validate("lock", "unlock", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock.unlock is not in allowlist")
}

func TestCommandGuardrails_BlockedWords(t *testing.T) {
	guardrails := NewCommandGuardrails()
	guardrails.BlockWords("password", "secret")

	err := guardrails.Validate("notify", "send", map[string]any{"message": "the PASSWORD is hunter2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked content")

	assert.NoError(t, guardrails.Validate("notify", "send", map[string]any{"message": "dinner is ready"}))
}

func TestCommandGuardrails_DataSchema(t *testing.T) {
	guardrails := NewCommandGuardrails()
	guardrails.SetDataSchema([]byte(`{
		"type": "object",
		"required": ["entity_id"],
		"properties": {"entity_id": {"type": "string"}}
	}`))

	assert.NoError(t, guardrails.Validate("light", "turn_on", map[string]any{"entity_id": "light.kitchen"}))

	err := guardrails.Validate("light", "turn_on", map[string]any{"brightness": 255})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "violates schema")

	err = guardrails.Validate("light", "turn_on", map[string]any{"entity_id": 42})
	assert.Error(t, err)
}
