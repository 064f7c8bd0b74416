package engine

import (
	"context"
	"errors"
	"fmt"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// CommandDispatcher executes a parsed command against the capability host.
// Every failure, from a malformed command shape to a host-side error, comes
// back as a DispatchError carrying whatever triple was extracted, so the
// engine can name the attempt in its spoken diagnostic.
type CommandDispatcher struct {
	caller     ports.ServiceCaller
	guardrails *CommandGuardrails
}

// NewCommandDispatcher creates a dispatcher over the given host. guardrails
// may be nil, which disables policy checks entirely.
func NewCommandDispatcher(caller ports.ServiceCaller, guardrails *CommandGuardrails) *CommandDispatcher {
	return &CommandDispatcher{caller: caller, guardrails: guardrails}
}

// Dispatch extracts domain/service/data from a mapping-typed command and
// calls the host. Sub-key problems are dispatch failures, not parse
// failures; the reply that carried them has already been committed to
// history by the time this runs.
func (d *CommandDispatcher) Dispatch(ctx context.Context, command map[string]any) error {
	domain, _ := command["domain"].(string)
	service, _ := command["service"].(string)
	data, _ := command["data"].(map[string]any)

	fail := func(err error) error {
		return &DispatchError{Domain: domain, Service: service, Data: data, Err: err}
	}

	if err := requireStringKey(command, "domain"); err != nil {
		return fail(err)
	}
	if err := requireStringKey(command, "service"); err != nil {
		return fail(err)
	}
	dataVal, ok := command["data"]
	if !ok {
		return fail(errors.New(`command missing key "data"`))
	}
	if _, ok := dataVal.(map[string]any); !ok {
		return fail(fmt.Errorf(`command key "data" has type %T, want object`, dataVal))
	}

	if d.guardrails != nil {
		if err := d.guardrails.Validate(domain, service, data); err != nil {
			return fail(err)
		}
	}

	if err := d.caller.Call(ctx, domain, service, data); err != nil {
		return fail(err)
	}
	return nil
}

func requireStringKey(command map[string]any, key string) error {
	val, ok := command[key]
	if !ok {
		return fmt.Errorf("command missing key %q", key)
	}
	if _, ok := val.(string); !ok {
		return fmt.Errorf("command key %q has type %T, want string", key, val)
	}
	return nil
}
