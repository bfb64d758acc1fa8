package gateway

import (
	"context"

	"github.com/pkg/errors"
)

// FrameKind tags the small fixed set of protocol-level event kinds.
// Namespaced business events all map to KindClientEvent; routing inside
// that kind is the event router's job, not the dispatcher's.
type FrameKind int

const (
	KindAuthenticate FrameKind = iota
	KindDisconnect
	KindClientEvent
)

func kindOf(event string) FrameKind {
	switch event {
	case EventAuthenticate:
		return KindAuthenticate
	case EventDisconnect:
		return KindDisconnect
	default:
		return KindClientEvent
	}
}

// Handler processes one inbound frame for one connection.
type Handler interface {
	Kind() FrameKind
	Handle(ctx context.Context, c *Conn, f *Frame) error
}

// Dispatcher is the tagged dispatch table over frame kinds.
type Dispatcher struct {
	handlers map[FrameKind]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameKind]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Kind()] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, f *Frame) error {
	h, ok := d.handlers[kindOf(f.Event)]
	if !ok {
		return errors.Errorf("no handler for kind of event %q", f.Event)
	}
	return h.Handle(ctx, c, f)
}
