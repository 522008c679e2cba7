package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// EventPriceUpdate is the only event the hub pushes
	EventPriceUpdate = "priceUpdate"

	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	sendBufferSize = 16
)

// envelope is the wire frame for every push
type envelope struct {
	Event   string        `json:"event"`
	Payload updatePayload `json:"payload"`
}

type updatePayload struct {
	Prices []domain.PriceRecord `json:"prices"`
	Meta   domain.PriceMeta     `json:"meta"`
}

// BootstrapSource answers the synchronous "current list" question for a
// newly connecting viewer that cannot wait for the next cycle.
type BootstrapSource interface {
	Current() ([]domain.PriceRecord, domain.PriceMeta)
}

// client is one connected viewer. Its send channel is bounded so a slow
// or dead viewer can never stall the cycle or other viewers.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Hub pushes full-list updates to all connected viewers.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*client
	bootstrap BootstrapSource
	metrics   *infra.Metrics
	upgrader  websocket.Upgrader
	closed    bool
}

// NewHub creates a hub. bootstrap may be nil (no synchronous seed).
func NewHub(bootstrap BootstrapSource, metrics *infra.Metrics) *Hub {
	return &Hub{
		clients:   make(map[string]*client),
		bootstrap: bootstrap,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Price lists are public; viewers connect from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request into a hub connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c

	// Seed the new viewer synchronously so it never waits a full cycle
	// for its first list. An all-tiers-empty cold start sends nothing.
	// Done under the lock: Close must not close the send channel between
	// registration and the seed. The fresh buffered channel cannot block.
	if h.bootstrap != nil {
		if records, meta := h.bootstrap.Current(); len(records) > 0 {
			if frame, err := marshalUpdate(records, meta); err == nil {
				c.send <- frame
			}
		}
	}
	h.mu.Unlock()
	h.metrics.IncrementClients()
	slog.Info("Viewer connected", slog.String("client", c.id))

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast pushes one full-list update to every connected viewer.
// A push containing zero records is suppressed entirely.
func (h *Hub) Broadcast(records []domain.PriceRecord, meta domain.PriceMeta) {
	if len(records) == 0 {
		slog.Warn("Suppressing empty broadcast")
		return
	}

	frame, err := marshalUpdate(records, meta)
	if err != nil {
		slog.Error("Broadcast encode failed", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow viewer: drop this frame for it only. The next full-list
			// update supersedes anything it missed.
			h.metrics.RecordDroppedMessage()
		}
	}
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all viewers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
		h.metrics.DecrementClients()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.DecrementClients()
		slog.Info("Viewer disconnected", slog.String("client", c.id))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.unregister(c)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames. Viewers send nothing meaningful; the
// read loop exists to notice disconnects and answer pings.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func marshalUpdate(records []domain.PriceRecord, meta domain.PriceMeta) ([]byte, error) {
	return json.Marshal(envelope{
		Event:   EventPriceUpdate,
		Payload: updatePayload{Prices: records, Meta: meta},
	})
}
