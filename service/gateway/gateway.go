package gateway

import (
	"context"
	"time"

	"RTGateway/logger"
	"RTGateway/service/auth"
	"RTGateway/service/bus"
	"RTGateway/service/registry"
	"RTGateway/service/router"
	"RTGateway/service/storage"
	"RTGateway/tools/ids"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Config holds the gateway's channel wiring.
type Config struct {
	IncomingChannel string
	OutgoingChannel string
}

// Gateway bridges live client connections to backend services over the
// pub/sub bus. It owns the per-connection state machine and the only
// process-local mutable state: the connection manager.
type Gateway struct {
	cfg      Config
	conns    *Manager
	presence storage.Presence
	checker  auth.Checker
	bridge   bus.Bridge
	routes   *router.Router
	reg      *registry.Registry
	disp     *Dispatcher
}

func New(cfg Config, presence storage.Presence, checker auth.Checker, bridge bus.Bridge, reg *registry.Registry) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		conns:    NewManager(),
		presence: presence,
		checker:  checker,
		bridge:   bridge,
		routes:   router.New(reg),
		reg:      reg,
		disp:     NewDispatcher(),
	}
	g.disp.Register(&authHandler{g: g})
	g.disp.Register(&disconnectHandler{})
	g.disp.Register(&clientEventHandler{g: g})
	return g
}

// Conns exposes the connection manager (diagnostics, tests).
func (g *Gateway) Conns() *Manager { return g.conns }

// Start subscribes to the outgoing broadcast channel. Must be called
// before the transport accepts connections.
func (g *Gateway) Start() error {
	if err := g.bridge.Subscribe(g.cfg.OutgoingChannel, g.handleBroadcast); err != nil {
		return errors.Wrap(err, "subscribe broadcast channel")
	}
	logger.Infof("[gateway] channels outgoing=%s inbound=%s", g.cfg.OutgoingChannel, g.cfg.IncomingChannel)
	return nil
}

// Close force-closes every live connection (shutdown path). Presence
// entries for them are removed by each connection's teardown.
func (g *Gateway) Close() {
	for _, c := range g.conns.snapshot() {
		c.Close()
		g.teardown(c)
	}
}

// HandleConnection drives one websocket connection from accept to close.
// Runs on the connection's own goroutine; every frame from this
// connection is handled sequentially, which preserves per-connection
// forwarding order.
func (g *Gateway) HandleConnection(ws *websocket.Conn) {
	c := newConn(ids.GenerateString(), ws)
	if err := g.conns.Add(c); err != nil {
		logger.Errorf("[gateway] track conn: %v", err)
		_ = ws.Close()
		return
	}
	incr(mConnections, 1)
	logger.Infof("[gateway] client connected handle=%s remote=%s", c.ID, ws.RemoteAddr())

	go c.writer()
	defer func() {
		c.Close()
		g.teardown(c)
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[gateway] peer closed handle=%s", c.ID)
			} else {
				logger.Infof("[gateway] read error handle=%s err=%v", c.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[gateway] bad frame handle=%s err=%v sample=%q", c.ID, perr, sample)
			continue
		}

		if err := g.disp.Dispatch(context.Background(), c, f); err != nil {
			if errors.Is(err, errClientGone) {
				return
			}
			logger.Infof("[gateway] dispatch handle=%s event=%s err=%v", c.ID, f.Event, err)
		}
	}
}

// errClientGone signals the read loop that the connection was closed by a
// handler (failed auth, explicit disconnect) and the loop should exit.
var errClientGone = errors.New("client connection closed")

// teardown runs the AUTHENTICATED -> CLOSED transition exactly once per
// connection, no matter whether a transport close, an eviction, or both
// triggered it.
func (g *Gateway) teardown(c *Conn) {
	c.teardownOnce.Do(func() {
		g.conns.Remove(c.ID)
		decr(mConnections, 1)

		userID, roomID, authorized := c.Identity()
		if !authorized {
			logger.Infof("[gateway] disconnected handle=%s (not authenticated)", c.ID)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Only remove the presence entry while it still points at this
		// handle; a newer session for the same (room,user) owns it now.
		if err := g.presence.RemoveHandle(ctx, roomID, userID, c.ID); err != nil {
			logger.Errorf("[gateway] presence remove %s/%s: %v", roomID, userID, err)
		}
		logger.Infof("[gateway] disconnected handle=%s user=%s room=%s", c.ID, userID, roomID)
	})
}
