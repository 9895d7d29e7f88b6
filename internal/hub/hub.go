package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer sizes each client's outbound queue. A client that falls this
// far behind starts dropping frames instead of blocking the broadcast path.
const sendBuffer = 64

// Client is a single push-channel connection. The write pump drains send
// into the socket so a slow browser never blocks a broadcast.
type Client struct {
	ID     string
	socket *websocket.Conn
	send   chan []byte
}

// NewClient wraps an upgraded websocket connection. socket may be nil in
// tests that only exercise the queue.
func NewClient(id string, socket *websocket.Conn) *Client {
	return &Client{ID: id, socket: socket, send: make(chan []byte, sendBuffer)}
}

// Enqueue hands a serialized frame to the client's write pump. A full
// queue is a per-client delivery failure: logged and dropped, never
// propagated to the caller.
func (c *Client) Enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Printf("hub: client %s send queue full, dropping frame", c.ID)
	}
}

// EnqueueJSON serializes v and enqueues it.
func (c *Client) EnqueueJSON(v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal for client %s failed: %v", c.ID, err)
		return
	}
	c.Enqueue(frame)
}

// WritePump writes queued frames to the socket until the queue is closed
// or a write fails. Runs on its own goroutine per connection.
func (c *Client) WritePump() {
	defer c.socket.Close()
	for frame := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("hub: write to client %s failed: %v", c.ID, err)
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

// Queued drains one pending frame without writing to a socket. Test hook.
func (c *Client) Queued() ([]byte, bool) {
	select {
	case frame := <-c.send:
		return frame, true
	default:
		return nil, false
	}
}

// Hub tracks the set of live push-channel clients and fans events out to
// all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func New() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Register adds a client to the set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client and closes its queue, stopping the write
// pump. Removal happens only on the connection's own disconnect signal.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast serializes the event once and attempts delivery to every
// client. A failure on one client never blocks the rest.
func (h *Hub) Broadcast(v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: broadcast marshal failed: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Enqueue(frame)
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
