package engineports

import "context"

// ServiceCaller executes an automation command on the capability host.
// Call returns nil on success; any failure (unknown target, invalid data,
// host-side error) comes back as a plain error for the dispatcher to wrap.
type ServiceCaller interface {
	Call(ctx context.Context, domain, service string, data map[string]any) error
}
