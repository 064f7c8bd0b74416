package engine

import "fmt"

// ProviderError wraps a completion/provider failure. Provider carries the
// adapter's display name so user-facing messages can say which backend broke.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ResponseParseError carries the raw model output that failed contract
// validation so callers can echo it back verbatim.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("parse response: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// DispatchError records the command triple the dispatcher attempted.
// Domain/Service/Data reflect whatever was extracted before the failure,
// including zero values when the sub-keys were absent.
type DispatchError struct {
	Domain  string
	Service string
	Data    map[string]any
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch (%s, %s, %v): %v", e.Domain, e.Service, e.Data, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TemplateRenderError marks a prompt template that failed to parse or execute.
type TemplateRenderError struct {
	Err error
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("render prompt template: %v", e.Err)
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }
