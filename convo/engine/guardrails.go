package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// CommandGuardrails vets parsed commands before they reach the capability
// host. A zero-value guardrail passes everything; each check activates only
// once configured, so an unconfigured engine executes commands exactly as
// the model requested them.
type CommandGuardrails struct {
	allowlist    map[string]bool // allowed "domain.service" pairs
	blockedWords []string
	dataSchema   []byte // JSON schema applied to the data payload
}

// NewCommandGuardrails creates guardrails with every check disabled.
func NewCommandGuardrails() *CommandGuardrails {
	return &CommandGuardrails{allowlist: make(map[string]bool)}
}

// Allow adds a domain/service pair to the allowlist. The first call switches
// the dispatcher from allow-all to allowlist mode.
func (g *CommandGuardrails) Allow(domain, service string) {
	g.allowlist[domain+"."+service] = true
}

// BlockWords adds words that must not appear anywhere in a command's data
// payload. Matching is case-insensitive.
func (g *CommandGuardrails) BlockWords(words ...string) {
	g.blockedWords = append(g.blockedWords, words...)
}

// SetDataSchema installs a JSON schema that every command data payload must
// satisfy. Pass nil to remove it.
func (g *CommandGuardrails) SetDataSchema(schema []byte) {
	g.dataSchema = schema
}

// Validate checks one command against the configured policies.
func (g *CommandGuardrails) Validate(domain, service string, data map[string]any) error {
	if len(g.allowlist) > 0 && !g.allowlist[domain+"."+service] {
		return fmt.Errorf("service %s.%s is not in allowlist", domain, service)
	}

	if len(g.blockedWords) == 0 && len(g.dataSchema) == 0 {
		return nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode command data: %w", err)
	}

	lower := strings.ToLower(string(encoded))
	for _, word := range g.blockedWords {
		if strings.Contains(lower, strings.ToLower(word)) {
			return fmt.Errorf("command data contains blocked content: %s", word)
		}
	}

	if len(g.dataSchema) > 0 {
		if err := g.validateSchema(encoded); err != nil {
			return err
		}
	}

	return nil
}

func (g *CommandGuardrails) validateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(g.dataSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("command data violates schema: %s", strings.Join(problems, "; "))
	}
	return nil
}
