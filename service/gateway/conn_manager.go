package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait     = 5 * time.Second
	sendQueueSize = 256
)

type outbound struct {
	data       []byte
	closeAfter bool
}

// Conn is one live client connection. The handle (ID) is process-unique
// and never reused; identity fields are set exactly once on successful
// authentication.
type Conn struct {
	ID string

	ws   *websocket.Conn
	send chan outbound

	closeOnce    sync.Once
	closed       chan struct{}
	teardownOnce sync.Once

	mu         sync.RWMutex
	userID     string
	roomID     string
	authorized bool
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:     id,
		ws:     ws,
		send:   make(chan outbound, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Identity returns the bound (userID, roomID); ok is false before
// authentication.
func (c *Conn) Identity() (string, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.roomID, c.authorized
}

func (c *Conn) bind(userID, roomID string) {
	c.mu.Lock()
	c.userID = userID
	c.roomID = roomID
	c.authorized = true
	c.mu.Unlock()
}

// Enqueue queues data for the writer goroutine. A full queue drops the
// frame rather than blocking the caller.
func (c *Conn) Enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- outbound{data: data}:
		return true
	default:
		return false
	}
}

// EnqueueClose queues a final frame and closes the connection once the
// writer has flushed it. Used for eviction notices.
func (c *Conn) EnqueueClose(data []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- outbound{data: data, closeAfter: true}:
	default:
		c.Close()
	}
}

// Close tears the transport down; safe to call any number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// writer is the single goroutine allowed to write to the websocket.
func (c *Conn) writer() {
	for {
		select {
		case out := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, out.data); err != nil {
				c.Close()
				return
			}
			if out.closeAfter {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Manager owns the process-local connection set: handle -> conn plus a
// room join index for local fan-out. All mutation goes through the mutex;
// connection handles from other gateway instances are simply absent here.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*Conn
	byRoom map[string]map[string]*Conn // room -> handle -> conn
}

func NewManager() *Manager {
	return &Manager{
		byID:   make(map[string]*Conn),
		byRoom: make(map[string]map[string]*Conn),
	}
}

func (m *Manager) Add(c *Conn) error {
	if c == nil || c.ID == "" {
		return errors.New("nil conn or empty handle")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[c.ID]; exists {
		return errors.Errorf("handle %s already tracked", c.ID)
	}
	m.byID[c.ID] = c
	return nil
}

func (m *Manager) Get(id string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	return c, ok
}

// Bind records the identity and joins the connection to the room's local
// broadcast group.
func (m *Manager) Bind(id, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return errors.Errorf("handle %s not tracked", id)
	}
	c.bind(userID, roomID)
	room := m.byRoom[roomID]
	if room == nil {
		room = make(map[string]*Conn)
		m.byRoom[roomID] = room
	}
	room[id] = c
	return nil
}

// Remove drops the connection from both indexes. Returns the conn so the
// caller can finish teardown; a second call is a no-op.
func (m *Manager) Remove(id string) (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	delete(m.byID, id)
	if _, roomID, authorized := c.Identity(); authorized {
		if room := m.byRoom[roomID]; room != nil {
			delete(room, id)
			if len(room) == 0 {
				delete(m.byRoom, roomID)
			}
		}
	}
	return c, true
}

// RoomConns lists the local connections joined to a room.
func (m *Manager) RoomConns(roomID string) []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room := m.byRoom[roomID]
	out := make([]*Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

func (m *Manager) snapshot() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// CloseAll force-closes every tracked connection (shutdown path).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.byID))
	for _, c := range m.byID {
		conns = append(conns, c)
	}
	m.byID = make(map[string]*Conn)
	m.byRoom = make(map[string]map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
