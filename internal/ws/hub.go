package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"vizboard/dashboard/internal/model"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxSendChannelSize = 64
)

// Event types pushed to dashboards.
const (
	EventTypeProgress        = "upload_progress"
	EventTypeComplete        = "upload_complete"
	EventTypeFailed          = "upload_failed"
	EventTypeDatasetsChanged = "datasets_changed"
)

// Event is one outbound message to a connected dashboard.
type Event struct {
	Type      string               `json:"type"`
	Handle    string               `json:"handle,omitempty"`
	Percent   int                  `json:"percent,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Retryable bool                 `json:"retryable,omitempty"`
	Dataset   *model.DatasetRecord `json:"dataset,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Metrics are process-wide hub counters.
type Metrics struct {
	EventsSent  atomic.Int64
	Connections atomic.Int64
	Errors      atomic.Int64
}

// Hub fans upload lifecycle events out to every open connection of an
// owner, so dashboards and dataset listings refresh without polling.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]bool // ownerID -> connections
	metrics Metrics
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint]map[*Client]bool)}
}

// Client is one websocket connection of one owner.
type Client struct {
	hub     *Hub
	ownerID uint
	conn    *websocket.Conn
	send    chan Event
}

// Register attaches a raw websocket connection to the hub and starts its
// pumps. The caller is done with conn after this.
func (h *Hub) Register(ownerID uint, conn *websocket.Conn) {
	client := &Client{
		hub:     h,
		ownerID: ownerID,
		conn:    conn,
		send:    make(chan Event, maxSendChannelSize),
	}

	h.mu.Lock()
	if h.clients[ownerID] == nil {
		h.clients[ownerID] = make(map[*Client]bool)
	}
	h.clients[ownerID][client] = true
	h.mu.Unlock()
	h.metrics.Connections.Inc()

	go client.writePump()
	go client.readPump()
}

// unregister is idempotent: a client dropped by broadcast is unregistered
// again by its own readPump defer, and the counter must move only once.
func (h *Hub) unregister(c *Client) {
	removed := false
	h.mu.Lock()
	if conns, ok := h.clients[c.ownerID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
			removed = true
		}
		if len(conns) == 0 {
			delete(h.clients, c.ownerID)
		}
	}
	h.mu.Unlock()
	if removed {
		h.metrics.Connections.Dec()
	}
}

// broadcast delivers an event to every connection of an owner. A client
// whose send buffer is full is dropped rather than allowed to block the
// pipeline.
func (h *Hub) broadcast(ownerID uint, event Event) {
	event.Timestamp = time.Now()

	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients[ownerID]))
	for c := range h.clients[ownerID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- event:
			h.metrics.EventsSent.Inc()
		default:
			h.metrics.Errors.Inc()
			h.unregister(c)
			c.conn.Close()
		}
	}
}

func (h *Hub) NotifyProgress(ownerID uint, handle string, percent int) {
	h.broadcast(ownerID, Event{Type: EventTypeProgress, Handle: handle, Percent: percent})
}

func (h *Hub) NotifyComplete(ownerID uint, handle string, record *model.DatasetRecord) {
	h.broadcast(ownerID, Event{Type: EventTypeComplete, Handle: handle, Percent: 100, Dataset: record})
}

func (h *Hub) NotifyFailed(ownerID uint, handle string, reason string, retryable bool) {
	h.broadcast(ownerID, Event{Type: EventTypeFailed, Handle: handle, Reason: reason, Retryable: retryable})
}

func (h *Hub) NotifyDatasetsChanged(ownerID uint) {
	h.broadcast(ownerID, Event{Type: EventTypeDatasetsChanged})
}

// readPump drains inbound frames (only pongs matter) and tears the client
// down when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				c.hub.metrics.Errors.Inc()
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
