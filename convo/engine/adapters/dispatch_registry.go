package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/armon/go-radix"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// HandlerFunc executes one registered service.
type HandlerFunc func(ctx context.Context, data map[string]any) error

// ServiceRegistry is an in-process capability host. Services register under
// "domain.service" keys in a radix tree, which makes per-domain listing a
// prefix walk.
type ServiceRegistry struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{tree: radix.New()}
}

// Register binds handler to domain.service, replacing any previous handler.
func (r *ServiceRegistry) Register(domain, service string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Insert(domain+"."+service, handler)
}

// Call routes a command to its registered handler.
func (r *ServiceRegistry) Call(ctx context.Context, domain, service string, data map[string]any) error {
	r.mu.RLock()
	val, ok := r.tree.Get(domain + "." + service)
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("service %s.%s is not registered", domain, service)
	}
	return val.(HandlerFunc)(ctx, data)
}

// Services lists registered "domain.service" names under domain; an empty
// domain lists everything.
func (r *ServiceRegistry) Services(domain string) []string {
	prefix := ""
	if domain != "" {
		prefix = domain + "."
	}

	var names []string
	r.mu.RLock()
	r.tree.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		names = append(names, key)
		return false
	})
	r.mu.RUnlock()
	return names
}

// Ensure ServiceRegistry implements the ServiceCaller interface.
var _ ports.ServiceCaller = (*ServiceRegistry)(nil)
