// Package dispatch funnels outbound events through one writer goroutine per connection
// and groups connections into named rooms.
package dispatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the write side of a websocket connection.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Config tunes the per-connection writers.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	return c
}

type client struct {
	id    string
	conn  Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	rooms map[string]struct{}
}

func (c *client) stop() bool {
	stopped := false
	c.once.Do(func() {
		close(c.done)
		stopped = true
	})
	return stopped
}

// Hub owns every registered connection. Each connection has a bounded mailbox drained by a
// single writer, so events enqueued by one producer reach the socket in order.
type Hub struct {
	cfg Config

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}

	wg sync.WaitGroup
}

// NewHub creates an empty hub.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:     cfg.withDefaults(),
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register attaches conn under connID and starts its writer. A previous connection with the
// same id is dropped.
func (h *Hub) Register(connID string, conn Conn) {
	c := &client{
		id:    connID,
		conn:  conn,
		send:  make(chan []byte, h.cfg.SendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}

	h.mu.Lock()
	old := h.clients[connID]
	if old != nil {
		h.detachLocked(old)
	}
	h.clients[connID] = c
	h.mu.Unlock()

	if old != nil {
		h.shutdown(old, "replaced")
	}

	h.wg.Add(1)
	go h.writeLoop(c)
}

// Unregister drops the connection and its room memberships. Unknown ids are ignored.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c := h.clients[connID]
	if c != nil {
		h.detachLocked(c)
	}
	h.mu.Unlock()

	if c != nil {
		h.shutdown(c, "unregistered")
	}
}

// SendToConnection enqueues ev for one connection. It reports false when the connection is
// gone or was dropped for being too slow.
func (h *Hub) SendToConnection(connID string, ev Event) bool {
	data, err := ev.encode()
	if err != nil {
		log.Error().Err(err).Str("component", "dispatch").Str("event", ev.Type).Msg("encode event")
		return false
	}

	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	return h.enqueue(c, data)
}

// BroadcastToRoom enqueues ev for every member of room and returns how many accepted it.
func (h *Hub) BroadcastToRoom(room string, ev Event) int {
	data, err := ev.encode()
	if err != nil {
		log.Error().Err(err).Str("component", "dispatch").Str("event", ev.Type).Msg("encode event")
		return 0
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if c := h.clients[id]; c != nil {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if h.enqueue(c, data) {
			delivered++
		}
	}
	return delivered
}

// Join adds a registered connection to room.
func (h *Hub) Join(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.clients[connID]
	if c == nil {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Leave removes connID from room and reports whether it was a member.
func (h *Hub) Leave(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[room]
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if c := h.clients[connID]; c != nil {
		delete(c.rooms, room)
	}
	return true
}

// Members lists the connections currently in room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		out = append(out, id)
	}
	return out
}

// Count reports the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection and waits for the writers to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		h.detachLocked(c)
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.shutdown(c, "hub closed")
	}
	h.wg.Wait()
}

func (h *Hub) enqueue(c *client, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		log.Warn().Str("component", "dispatch").Str("conn_id", c.id).Msg("send buffer full, dropping slow connection")
		h.drop(c, "slow consumer")
		return false
	}
}

// drop detaches c if it is still the registered client for its id.
func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		h.detachLocked(c)
	}
	h.mu.Unlock()
	h.shutdown(c, reason)
}

func (h *Hub) detachLocked(c *client) {
	delete(h.clients, c.id)
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = make(map[string]struct{})
}

func (h *Hub) shutdown(c *client, reason string) {
	if !c.stop() {
		return
	}
	log.Debug().Str("component", "dispatch").Str("conn_id", c.id).Str("reason", reason).Msg("connection dropped")
	_ = c.conn.Close()
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "dispatch").Str("conn_id", c.id).Msg("ws write failed, dropping connection")
				h.drop(c, "write failed")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				h.drop(c, "ping failed")
				return
			}
		}
	}
}
