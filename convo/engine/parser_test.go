package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputParser_ParseWellFormed(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"The light is on.","command":{"domain":"light","service":"turn_on","data":{"entity_id":"light.kitchen"}}}`)
	require.NoError(t, err)

	assert.Equal(t, "The light is on.", parsed.Comment)
	require.NotNil(t, parsed.Command)
	assert.Equal(t, "light", parsed.Command["domain"])
	assert.Equal(t, "turn_on", parsed.Command["service"])
	assert.Equal(t, map[string]any{"entity_id": "light.kitchen"}, parsed.Command["data"])
	assert.Empty(t, parsed.Rest)
}

func TestOutputParser_ParseCommentOnly(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"Got it!"}`)
	require.NoError(t, err)

	assert.Equal(t, "Got it!", parsed.Comment)
	assert.Nil(t, parsed.Command)
	assert.Empty(t, parsed.Rest)
}

func TestOutputParser_TrailingCommaRepair(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"hi","command":{"domain":"light","service":"turn_on","data":{}},}`)
	require.NoError(t, err)

	assert.Equal(t, "hi", parsed.Comment)
	assert.Equal(t, map[string]any{
		"domain":  "light",
		"service": "turn_on",
		"data":    map[string]any{},
	}, parsed.Command)
}

func TestOutputParser_RepairAppliesEverywhere(t *testing.T) {
	parser := NewOutputParser()

	// Every ",}" occurrence is dropped, nested objects included.
	parsed, err := parser.Parse(`{"comment":"ok","command":{"domain":"switch","service":"toggle","data":{"a":1,},},}`)
	require.NoError(t, err)

	assert.Equal(t, "ok", parsed.Comment)
	require.NotNil(t, parsed.Command)
	assert.Equal(t, map[string]any{"a": float64(1)}, parsed.Command["data"])
}

func TestOutputParser_RepairHasNoWhitespaceTolerance(t *testing.T) {
	parser := NewOutputParser()

	// A comma separated from the brace by a space is not repaired.
	_, err := parser.Parse(`{"comment":"hi", }`)
	assert.Error(t, err)
}

func TestOutputParser_NonObjectCommandIgnored(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"done","command":"turn everything off"}`)
	require.NoError(t, err)

	assert.Equal(t, "done", parsed.Comment)
	assert.Nil(t, parsed.Command)
	// The malformed command is retained for diagnostics, not executed.
	assert.Equal(t, "turn everything off", parsed.Rest["command"])
}

func TestOutputParser_ArrayCommandIgnored(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"done","command":[{"domain":"light"}]}`)
	require.NoError(t, err)

	assert.Nil(t, parsed.Command)
	assert.Contains(t, parsed.Rest, "command")
}

func TestOutputParser_MalformedJSON(t *testing.T) {
	parser := NewOutputParser()

	_, err := parser.Parse("I'm sorry, I can't do that.")
	require.Error(t, err)

	var parseErr *ResponseParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "I'm sorry, I can't do that.", parseErr.Raw)
}

func TestOutputParser_MissingComment(t *testing.T) {
	parser := NewOutputParser()

	_, err := parser.Parse(`{"command":{"domain":"light","service":"turn_on","data":{}}}`)
	require.Error(t, err)

	var parseErr *ResponseParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Err.Error(), "comment")
}

func TestOutputParser_NonStringComment(t *testing.T) {
	parser := NewOutputParser()

	_, err := parser.Parse(`{"comment":42}`)
	require.Error(t, err)

	var parseErr *ResponseParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Err.Error(), "want string")
}

func TestOutputParser_NonObjectTopLevel(t *testing.T) {
	parser := NewOutputParser()

	_, err := parser.Parse(`["comment","hi"]`)
	assert.Error(t, err)

	_, err = parser.Parse(`"just a string"`)
	assert.Error(t, err)
}

func TestOutputParser_RestRetainsExtras(t *testing.T) {
	parser := NewOutputParser()

	parsed, err := parser.Parse(`{"comment":"hi","confidence":0.9,"mood":"helpful"}`)
	require.NoError(t, err)

	assert.Equal(t, "hi", parsed.Comment)
	assert.Equal(t, 0.9, parsed.Rest["confidence"])
	assert.Equal(t, "helpful", parsed.Rest["mood"])
	assert.NotContains(t, parsed.Rest, "comment")
}

func BenchmarkOutputParser_Parse(b *testing.B) {
	parser := NewOutputParser()
	raw := `{"comment":"The kitchen light is now on.","command":{"domain":"light","service":"turn_on","data":{"entity_id":"light.kitchen","brightness":255}},}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := parser.Parse(raw); err != nil {
			b.Fatal(err)
		}
	}
}
