package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParsedResponse is the validated shape of one model reply.
type ParsedResponse struct {
	// Comment is the conversational text spoken back to the user.
	Comment string
	// Command holds the mapping-typed "command" value when the reply
	// carried one; nil otherwise.
	Command map[string]any
	// Rest retains every other top-level key. A "command" whose value is
	// not a mapping stays here untouched.
	Rest map[string]any
}

// OutputParser validates raw model output against the reply contract:
// a single JSON object with a required "comment" string and an optional
// "command" object.
type OutputParser struct{}

// NewOutputParser creates a parser for the comment/command reply contract.
func NewOutputParser() *OutputParser {
	return &OutputParser{}
}

// Parse repairs and decodes one raw model reply.
//
// The only repair applied is dropping commas that sit immediately before a
// closing brace, a recurring quirk in model-emitted JSON. The heuristic is
// deliberately narrow: it has no whitespace tolerance and touches nothing
// else, so the set of accepted replies stays stable.
func (p *OutputParser) Parse(raw string) (*ParsedResponse, error) {
	repaired := strings.ReplaceAll(raw, ",}", "}")

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, &ResponseParseError{Raw: raw, Err: err}
	}

	commentVal, ok := obj["comment"]
	if !ok {
		return nil, &ResponseParseError{Raw: raw, Err: errors.New(`missing required key "comment"`)}
	}
	comment, ok := commentVal.(string)
	if !ok {
		return nil, &ResponseParseError{Raw: raw, Err: fmt.Errorf(`key "comment" has type %T, want string`, commentVal)}
	}
	// Comment is returned separately so it never leaks into a command payload.
	delete(obj, "comment")

	parsed := &ParsedResponse{Comment: comment, Rest: obj}
	if cmd, ok := obj["command"].(map[string]any); ok {
		parsed.Command = cmd
		delete(obj, "command")
	}
	return parsed, nil
}
