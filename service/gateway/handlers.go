package gateway

import (
	"context"
	"time"

	"RTGateway/logger"

	errs "RTGateway/tools/errs"
)

// authHandler drives the CONNECTED -> AUTHENTICATED transition.
type authHandler struct{ g *Gateway }

func (h *authHandler) Kind() FrameKind { return KindAuthenticate }

func (h *authHandler) Handle(ctx context.Context, c *Conn, f *Frame) error {
	g := h.g

	payload, err := f.AuthPayload()
	if err != nil {
		c.EnqueueClose(buildErrorFrame(errs.ErrAuthFailed.WithMsg("malformed authenticate payload")))
		return errClientGone
	}

	logger.Infof("[gateway] authenticating handle=%s room=%s", c.ID, payload.RoomID)

	// The check is synchronous for this connection only; other
	// connections keep being served while it is in flight.
	result := g.checker.CheckAccess(ctx, payload.Token, payload.RoomID)

	// The connection may have closed while the check was in flight; a
	// late result must not resurrect state.
	if _, stillTracked := g.conns.Get(c.ID); !stillTracked {
		logger.Infof("[gateway] discarding late auth result handle=%s", c.ID)
		return errClientGone
	}

	if !result.Success || result.UserID == "" {
		msg := result.Message
		if msg == "" {
			msg = "authentication failed"
		}
		c.EnqueueClose(buildErrorFrame(errs.ErrAuthFailed.WithMsg("%s", msg)))
		return errClientGone
	}
	userID := result.UserID

	// Duplicate-session eviction: a (user,room) pair may have at most one
	// registered connection. Best effort: if the prior handle belongs to
	// another gateway instance it is not locally tracked and the presence
	// overwrite below settles ownership.
	users, lerr := g.presence.ListUsers(ctx, payload.RoomID)
	if lerr != nil {
		logger.Errorf("[gateway] presence lookup room=%s: %v", payload.RoomID, lerr)
		c.EnqueueClose(buildErrorFrame(errs.ErrRegistryUnavailable))
		return errClientGone
	}
	if oldHandle, ok := users[userID]; ok && oldHandle != c.ID {
		if old, tracked := g.conns.Get(oldHandle); tracked {
			logger.Infof("[gateway] evicting duplicate session user=%s room=%s old=%s new=%s",
				userID, payload.RoomID, oldHandle, c.ID)
			old.EnqueueClose(buildErrorFrame(errs.ErrDuplicateConnection))
			incr(mEvictions, 1)
		}
	}

	if perr := g.presence.Put(ctx, payload.RoomID, userID, c.ID); perr != nil {
		logger.Errorf("[gateway] presence put %s/%s: %v", payload.RoomID, userID, perr)
		c.EnqueueClose(buildErrorFrame(errs.ErrRegistryUnavailable))
		return errClientGone
	}

	if berr := g.conns.Bind(c.ID, userID, payload.RoomID); berr != nil {
		// Remove raced the bind; the connection is already gone.
		return errClientGone
	}
	incr(mAuthenticated, 1)

	c.Enqueue(buildAuthAck(userID, payload.RoomID))
	logger.Infof("[gateway] authenticated handle=%s user=%s room=%s", c.ID, userID, payload.RoomID)
	return nil
}

// disconnectHandler handles an explicit client disconnect frame; the
// actual teardown runs when the read loop exits.
type disconnectHandler struct{}

func (h *disconnectHandler) Kind() FrameKind { return KindDisconnect }

func (h *disconnectHandler) Handle(_ context.Context, c *Conn, _ *Frame) error {
	c.Close()
	return errClientGone
}

// clientEventHandler forwards namespaced business events to their
// service channel.
type clientEventHandler struct{ g *Gateway }

func (h *clientEventHandler) Kind() FrameKind { return KindClientEvent }

func (h *clientEventHandler) Handle(ctx context.Context, c *Conn, f *Frame) error {
	g := h.g

	userID, roomID, authorized := c.Identity()
	if !authorized {
		c.Enqueue(buildErrorFrame(errs.ErrNotAuthenticated))
		return nil
	}

	channel, ok := g.routes.Resolve(f.Event)
	if !ok {
		incr(mEventsDropped, 1)
		c.Enqueue(buildErrorFrame(errs.ErrInvalidEvent.WithMsg("unroutable event %q", f.Event)))
		return nil
	}

	event := GatewayEvent{
		EventType: f.Event,
		UserID:    userID,
		ConnID:    c.ID,
		RoomID:    roomID,
		Payload:   f.Data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := g.bridge.Publish(ctx, channel, event); err != nil {
		logger.Errorf("[gateway] publish %s: %v", channel, err)
		c.Enqueue(buildErrorFrame(errs.ErrBridgeUnavailable))
		return nil
	}
	incr(mForwarded, 1)
	return nil
}
