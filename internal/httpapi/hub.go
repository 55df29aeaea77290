package httpapi

import (
	log "log/slog"
	"sync"

	"ladybot/internal/observability"
)

// Message types on the /ws socket.
const (
	TypeSend   = "send"
	TypeListen = "listen"
	TypeStop   = "stop"
	TypeExit   = "exit"

	TypeAppend     = "append"
	TypeClearInput = "clear_input"
	TypeStatus     = "status"
	TypeListening  = "listening"
	TypeSnapshot   = "snapshot"
	TypeClosed     = "closed"
	TypeError      = "error"
)

type Message struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Listening *bool  `json:"listening,omitempty"`
}

const clientQueue = 256

type client struct {
	send chan Message
}

// Hub fans display events out to every connected page. It implements
// assistant.Sink.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{clients: make(map[*client]struct{}), metrics: metrics}
}

func (h *Hub) Append(text string) {
	h.broadcast(Message{Type: TypeAppend, Text: text})
}

func (h *Hub) ClearInput() {
	h.broadcast(Message{Type: TypeClearInput})
}

func (h *Hub) Status(text string) {
	h.broadcast(Message{Type: TypeStatus, Text: text})
}

// Listening pushes the recognition loop state so the page button follows it.
func (h *Hub) Listening(on bool) {
	h.broadcast(Message{Type: TypeListening, Listening: &on})
}

// Closed tells every page the window is gone and stops accepting clients.
func (h *Hub) Closed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		// enqueue leaves one slot free, so this never blocks
		c.send <- Message{Type: TypeClosed}
		close(c.send)
		delete(h.clients, c)
		h.metrics.ClientConnected(-1)
	}
}

// register adds a client whose first message is first.
func (h *Hub) register(first Message) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan Message, clientQueue)}
	c.send <- first
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected(1)
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.ClientConnected(-1)
}

// Clients reports the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueue(c, m)
	}
}

// enqueue never blocks; a page that cannot keep up is disconnected and will
// resync from the snapshot when it reconnects. The last queue slot is kept
// for the closed message. Callers hold h.mu.
func (h *Hub) enqueue(c *client, m Message) {
	if len(c.send) < cap(c.send)-1 {
		c.send <- m
		h.metrics.ObserveWS("outbound", m.Type)
		return
	}
	log.Warn("Dropping slow UI client", "type", m.Type)
	delete(h.clients, c)
	close(c.send)
	h.metrics.ClientConnected(-1)
}
