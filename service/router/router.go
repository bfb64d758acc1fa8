package router

import (
	"strings"

	"RTGateway/service/registry"
)

// Route is a parsed namespaced event identifier of the shape
// serviceName:module:eventName.
type Route struct {
	Service string
	Module  string
	Event   string
}

// Router resolves namespaced event ids to bus channels. Stateless apart
// from the registry it reads.
type Router struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// Parse splits eventID on ':' and requires exactly three non-empty
// segments. Segments are taken literally: case-sensitive, no trimming.
func Parse(eventID string) (Route, bool) {
	parts := strings.Split(eventID, ":")
	if len(parts) != 3 {
		return Route{}, false
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Route{}, false
	}
	return Route{Service: parts[0], Module: parts[1], Event: parts[2]}, true
}

// Resolve maps an event id to the owning service's channel. Returns
// ("", false) for malformed ids and unregistered services alike.
func (r *Router) Resolve(eventID string) (string, bool) {
	route, ok := Parse(eventID)
	if !ok {
		return "", false
	}
	return r.reg.Resolve(route.Service)
}
