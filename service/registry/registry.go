package registry

import (
	"sync"

	"RTGateway/logger"
	errs "RTGateway/tools/errs"

	"github.com/pkg/errors"
)

// Route binds a backend service name to its outbound bus channel.
// Immutable after registration.
type Route struct {
	Service string `json:"service"`
	Channel string `json:"channel"`
}

// Registry is the startup-time service name -> channel table. Registration
// happens once during boot; the mutex only guards against a misbehaving
// caller registering during live traffic.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func New() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// Register adds a route. Registering an already-known service name is a
// configuration error and must abort startup.
func (r *Registry) Register(service, channel string) error {
	if service == "" || channel == "" {
		return errors.New("empty service or channel")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[service]; exists {
		return errs.ErrDuplicateService.WithMsg("service %q already registered", service)
	}
	r.routes[service] = Route{Service: service, Channel: channel}
	logger.Infof("[registry] registered service %s -> %s", service, channel)
	return nil
}

// Resolve returns the channel for a service. A missing service is a normal
// negative result, not an error.
func (r *Registry) Resolve(service string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[service]
	if !ok {
		return "", false
	}
	return route.Channel, true
}

// Has reports whether the service name is registered.
func (r *Registry) Has(service string) bool {
	_, ok := r.Resolve(service)
	return ok
}

// List returns all registered routes, for diagnostics.
func (r *Registry) List() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	return out
}
