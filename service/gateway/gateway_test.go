package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"RTGateway/service/auth"
	"RTGateway/service/bus"
	"RTGateway/service/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- test doubles ----

type fakePresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]string // room -> user -> handle
	fail  bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{rooms: make(map[string]map[string]string)}
}

func (p *fakePresence) Put(_ context.Context, room, user, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return assert.AnError
	}
	if p.rooms[room] == nil {
		p.rooms[room] = make(map[string]string)
	}
	p.rooms[room][user] = handle
	return nil
}

func (p *fakePresence) Remove(_ context.Context, room, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms[room], user)
	return nil
}

func (p *fakePresence) RemoveHandle(_ context.Context, room, user, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rooms[room][user] == handle {
		delete(p.rooms[room], user)
	}
	return nil
}

func (p *fakePresence) ListUsers(_ context.Context, room string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, assert.AnError
	}
	out := make(map[string]string, len(p.rooms[room]))
	for u, h := range p.rooms[room] {
		out[u] = h
	}
	return out, nil
}

func (p *fakePresence) ListHandles(_ context.Context, room string) ([]string, error) {
	users, err := p.ListUsers(context.Background(), room)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(users))
	for _, h := range users {
		handles = append(handles, h)
	}
	return handles, nil
}

func (p *fakePresence) handleOf(room, user string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.rooms[room][user]
	return h, ok
}

type published struct {
	Channel string
	Event   GatewayEvent
}

type fakeBridge struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]bus.Handler
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: make(map[string]bus.Handler)}
}

func (b *fakeBridge) Publish(_ context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var ev GatewayEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, published{Channel: channel, Event: ev})
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) Subscribe(channel string, h bus.Handler) error {
	b.handlers[channel] = h
	return nil
}

func (b *fakeBridge) Close() error { return nil }

func (b *fakeBridge) calls() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

type fakeChecker struct {
	check func(token, roomID string) auth.Result
}

func (c *fakeChecker) CheckAccess(_ context.Context, token, roomID string) auth.Result {
	return c.check(token, roomID)
}

func okChecker() *fakeChecker {
	return &fakeChecker{check: func(token, _ string) auth.Result {
		return auth.Result{Success: true, UserID: "user_" + token}
	}}
}

func deniedChecker() *fakeChecker {
	return &fakeChecker{check: func(_, _ string) auth.Result {
		return auth.Result{Success: false, Message: "access denied"}
	}}
}

// ---- helpers ----

type fixture struct {
	g        *Gateway
	presence *fakePresence
	bridge   *fakeBridge
}

func newFixture(t *testing.T, checker auth.Checker) *fixture {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("stickyNotes", "events:stickyNotes"))

	presence := newFakePresence()
	bridge := newFakeBridge()
	g := New(Config{
		IncomingChannel: "events:gateway",
		OutgoingChannel: "events:broadcast",
	}, presence, checker, bridge, reg)
	require.NoError(t, g.Start())
	return &fixture{g: g, presence: presence, bridge: bridge}
}

func (fx *fixture) addConn(t *testing.T, id string) *Conn {
	t.Helper()
	c := newConn(id, nil)
	require.NoError(t, fx.g.conns.Add(c))
	return c
}

func (fx *fixture) authenticate(t *testing.T, c *Conn, token, roomID string) {
	t.Helper()
	data, _ := json.Marshal(AuthPayload{Token: token, RoomID: roomID})
	f := &Frame{Event: EventAuthenticate, Data: data}
	_ = fx.g.disp.Dispatch(context.Background(), c, f)
}

func clientFrame(t *testing.T, event string, payload any) *Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Frame{Event: event, Data: data}
}

// nextFrame pops one queued outbound frame, failing after a short wait.
func nextFrame(t *testing.T, c *Conn) (Frame, bool) {
	t.Helper()
	select {
	case out := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(out.data, &f))
		return f, out.closeAfter
	case <-time.After(time.Second):
		t.Fatal("no outbound frame queued")
		return Frame{}, false
	}
}

func errorCode(t *testing.T, f Frame) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &body))
	return body.Code
}

// ---- authentication ----

func TestAuthenticateSuccess(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")

	fx.authenticate(t, c, "alice", "room1")

	userID, roomID, authorized := c.Identity()
	require.True(t, authorized)
	assert.Equal(t, "user_alice", userID)
	assert.Equal(t, "room1", roomID)

	handle, ok := fx.presence.handleOf("room1", "user_alice")
	require.True(t, ok)
	assert.Equal(t, "h1", handle)

	f, closeAfter := nextFrame(t, c)
	assert.Equal(t, EventAuthenticated, f.Event)
	assert.False(t, closeAfter)

	var ack map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	assert.Equal(t, "user_alice", ack["userId"])
	assert.Equal(t, "room1", ack["roomId"])

	// joined the local room group
	assert.Len(t, fx.g.conns.RoomConns("room1"), 1)
}

func TestAuthenticateDenied(t *testing.T) {
	fx := newFixture(t, deniedChecker())
	c := fx.addConn(t, "h1")

	fx.authenticate(t, c, "alice", "room1")

	f, closeAfter := nextFrame(t, c)
	assert.Equal(t, EventError, f.Event)
	assert.Equal(t, "AUTH_FAILED", errorCode(t, f))
	assert.True(t, closeAfter, "failed auth must close the connection")

	_, _, authorized := c.Identity()
	assert.False(t, authorized)
	_, ok := fx.presence.handleOf("room1", "user_alice")
	assert.False(t, ok)
}

func TestAuthenticateMissingUserIDIsFailure(t *testing.T) {
	fx := newFixture(t, &fakeChecker{check: func(_, _ string) auth.Result {
		return auth.Result{Success: true} // malformed: success without userId
	}})
	c := fx.addConn(t, "h1")

	fx.authenticate(t, c, "alice", "room1")

	f, closeAfter := nextFrame(t, c)
	assert.Equal(t, "AUTH_FAILED", errorCode(t, f))
	assert.True(t, closeAfter)
}

func TestDuplicateSessionEviction(t *testing.T) {
	fx := newFixture(t, okChecker())

	a := fx.addConn(t, "hA")
	fx.authenticate(t, a, "alice", "room1")
	_, _ = nextFrame(t, a) // ack

	b := fx.addConn(t, "hB")
	fx.authenticate(t, b, "alice", "room1")

	// A got the duplicate-connection notice and is being closed.
	notice, closeAfter := nextFrame(t, a)
	assert.Equal(t, EventError, notice.Event)
	assert.Equal(t, "DUPLICATE_CONNECTION", errorCode(t, notice))
	assert.True(t, closeAfter)

	// B owns the presence entry now.
	handle, ok := fx.presence.handleOf("room1", "user_alice")
	require.True(t, ok)
	assert.Equal(t, "hB", handle)

	ack, _ := nextFrame(t, b)
	assert.Equal(t, EventAuthenticated, ack.Event)
}

func TestEvictionSkippedWhenHandleNotLocal(t *testing.T) {
	fx := newFixture(t, okChecker())

	// Presence claims another gateway instance owns the session.
	require.NoError(t, fx.presence.Put(context.Background(), "room1", "user_alice", "remote-handle"))

	b := fx.addConn(t, "hB")
	fx.authenticate(t, b, "alice", "room1")

	ack, _ := nextFrame(t, b)
	assert.Equal(t, EventAuthenticated, ack.Event, "eviction of a non-local handle is skipped silently")

	handle, _ := fx.presence.handleOf("room1", "user_alice")
	assert.Equal(t, "hB", handle, "presence overwrite settles cross-instance ownership")
}

func TestLateAuthResultDiscarded(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.addConn(t, "h1")

	// The connection disappears while the auth call is in flight.
	fx.g.checker = &fakeChecker{check: func(_, _ string) auth.Result {
		fx.g.conns.Remove(c.ID)
		return auth.Result{Success: true, UserID: "user_alice"}
	}}

	fx.authenticate(t, c, "alice", "room1")

	_, ok := fx.presence.handleOf("room1", "user_alice")
	assert.False(t, ok, "late auth result must not resurrect state")
	_, _, authorized := c.Identity()
	assert.False(t, authorized)
}

// ---- forwarding ----

func TestForwardBeforeAuth(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")

	f := clientFrame(t, "stickyNotes:note:move", map[string]any{"x": 1})
	require.NoError(t, fx.g.disp.Dispatch(context.Background(), c, f))

	reply, closeAfter := nextFrame(t, c)
	assert.Equal(t, "NOT_AUTHENTICATED", errorCode(t, reply))
	assert.False(t, closeAfter, "connection stays open")
	assert.Empty(t, fx.bridge.calls())
}

func TestForwardEvent(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")
	fx.authenticate(t, c, "alice", "room1")
	_, _ = nextFrame(t, c) // ack

	f := clientFrame(t, "stickyNotes:note:move", map[string]any{"noteId": "n1", "x": 10})
	require.NoError(t, fx.g.disp.Dispatch(context.Background(), c, f))

	calls := fx.bridge.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "events:stickyNotes", calls[0].Channel)

	ev := calls[0].Event
	assert.Equal(t, "stickyNotes:note:move", ev.EventType)
	assert.Equal(t, "user_alice", ev.UserID)
	assert.Equal(t, "h1", ev.ConnID)
	assert.Equal(t, "room1", ev.RoomID)
	assert.NotZero(t, ev.Timestamp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "n1", payload["noteId"])
}

func TestForwardMalformedEventID(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")
	fx.authenticate(t, c, "alice", "room1")
	_, _ = nextFrame(t, c)

	for _, eventID := range []string{"badformat", "a:b", "a:b:c:d", "::", "stickyNotes::move"} {
		f := clientFrame(t, eventID, map[string]any{})
		require.NoError(t, fx.g.disp.Dispatch(context.Background(), c, f))

		reply, closeAfter := nextFrame(t, c)
		assert.Equal(t, "INVALID_EVENT", errorCode(t, reply), "eventID %q", eventID)
		assert.False(t, closeAfter)
	}
	assert.Empty(t, fx.bridge.calls(), "invalid events are dropped, never published")
}

func TestForwardUnregisteredService(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")
	fx.authenticate(t, c, "alice", "room1")
	_, _ = nextFrame(t, c)

	f := clientFrame(t, "whiteboard:shape:add", map[string]any{})
	require.NoError(t, fx.g.disp.Dispatch(context.Background(), c, f))

	reply, _ := nextFrame(t, c)
	assert.Equal(t, "INVALID_EVENT", errorCode(t, reply))
	assert.Empty(t, fx.bridge.calls())
}

// ---- teardown ----

func TestTeardownRemovesOwnPresenceOnce(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")
	fx.authenticate(t, c, "alice", "room1")
	_, _ = nextFrame(t, c)

	fx.g.teardown(c)
	_, ok := fx.presence.handleOf("room1", "user_alice")
	assert.False(t, ok)
	assert.Zero(t, fx.g.conns.Count())

	// double invocation (transport close + eviction) is safe
	fx.g.teardown(c)
	assert.Zero(t, fx.g.conns.Count())
}

func TestTeardownPreservesSuccessorPresence(t *testing.T) {
	fx := newFixture(t, okChecker())

	a := fx.addConn(t, "hA")
	fx.authenticate(t, a, "alice", "room1")
	b := fx.addConn(t, "hB")
	fx.authenticate(t, b, "alice", "room1")

	// The evicted session tears down after B already took over.
	fx.g.teardown(a)

	handle, ok := fx.presence.handleOf("room1", "user_alice")
	require.True(t, ok, "successor presence entry must survive the evicted session's teardown")
	assert.Equal(t, "hB", handle)
}

func TestTeardownUnauthenticated(t *testing.T) {
	fx := newFixture(t, okChecker())
	c := fx.addConn(t, "h1")
	fx.g.teardown(c)
	assert.Zero(t, fx.g.conns.Count())
}
