// Package websocket streams delivery attempts and monitor state changes to
// dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	TypeDeliverySuccess = "delivery_success"
	TypeDeliveryFailed  = "delivery_failed"
	TypeDeliveryError   = "delivery_error"
	TypeMonitorStatus   = "monitor_status"
)

// Event is one message on the live feed. Delivery events carry the record's
// fields; status events carry Running.
type Event struct {
	Type            string    `json:"type"`
	ProgramTitle    string    `json:"program_title,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	StartTime       string    `json:"start_time,omitempty"`
	WebhookEndpoint string    `json:"webhook_endpoint,omitempty"`
	ResponseCode    int       `json:"response_code,omitempty"`
	Running         *bool     `json:"running,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Hub fans events out to connected dashboards. Clients that fall behind are
// dropped rather than allowed to stall the feed. The latest monitor status is
// replayed to each client as it joins.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	status  []byte

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			if h.status != nil {
				c.send <- h.status
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("dashboard client connected", "total_clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.dropLocked(c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("dashboard client disconnected", "total_clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping slow dashboard client")
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Publish implements deliverylog.Publisher.
func (h *Hub) Publish(rec domain.DeliveryRecord) {
	typ := TypeDeliveryError
	switch rec.Outcome {
	case domain.OutcomeSuccess:
		typ = TypeDeliverySuccess
	case domain.OutcomeFailed:
		typ = TypeDeliveryFailed
	}

	h.Broadcast(Event{
		Type:            typ,
		ProgramTitle:    rec.ProgramTitle,
		Channel:         rec.Channel,
		StartTime:       rec.StartTime,
		WebhookEndpoint: rec.WebhookEndpoint,
		ResponseCode:    rec.ResponseCode,
		Timestamp:       rec.SentAt,
	})
}

// PublishStatus announces that monitoring started or stopped and remembers it
// for clients that connect later.
func (h *Hub) PublishStatus(running bool) {
	data, ok := h.encode(Event{Type: TypeMonitorStatus, Running: &running, Timestamp: time.Now()})
	if !ok {
		return
	}

	h.mu.Lock()
	h.status = data
	h.mu.Unlock()

	h.enqueue(data)
}

// Broadcast queues event for every client without blocking. Events are
// dropped when the queue is full.
func (h *Hub) Broadcast(event Event) {
	if data, ok := h.encode(event); ok {
		h.enqueue(data)
	}
}

func (h *Hub) encode(event Event) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode dashboard event", "type", event.Type, "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) enqueue(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("dashboard feed backlog full, dropping event")
	}
}

// HandleWebSocket serves /ws.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// readLoop discards anything the client sends and notices disconnects.
func (c *client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
