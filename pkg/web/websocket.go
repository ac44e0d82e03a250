package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event types pushed to websocket clients
const (
	EventSighting = "sighting"
	EventHello    = "hello"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	clientBuffer   = 64
)

// Event represents a WebSocket event to be broadcast to clients
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client is one websocket subscriber
type Client struct {
	ID       string
	conn     *websocket.Conn
	messages chan []byte
}

// WebSocketHub fans sightings out to connected dashboards
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("web.hub"),
	}
}

// Run owns the client set until ctx is done
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case ev := <-h.broadcast:
			h.fanout(ev)
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

func (h *WebSocketHub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Dashboard connected",
		logger.String("client_id", c.ID),
		logger.Int("clients", n))
}

func (h *WebSocketHub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.messages)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("Dashboard disconnected", logger.String("client_id", c.ID))
	}
}

// fanout never blocks on a slow client; its copy of the event is dropped
func (h *WebSocketHub) fanout(ev Event) {
	msg, err := ev.Marshal()
	if err != nil {
		h.logger.Error("Cannot encode event", logger.String("type", ev.Type), logger.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.messages <- msg:
		default:
			h.logger.Warn("Dashboard too slow, event dropped", logger.String("client_id", c.ID))
		}
	}
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.messages)
		delete(h.clients, c)
	}
}

// Broadcast queues an event for every client. Events are dropped when the
// queue is full.
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Hub queue full, event dropped", logger.String("type", event.Type))
	}
}

// HandleSighting pushes a sighting event to live dashboards
func (h *WebSocketHub) HandleSighting(s scanner.Sighting) error {
	data := s.Reading.Map()
	data["address"] = s.Address
	data["rssi"] = s.RSSI
	if s.Name != "" {
		data["name"] = s.Name
	}
	h.Broadcast(Event{
		Type:      EventSighting,
		Timestamp: s.SeenAt,
		Data:      data,
	})
	return nil
}

// Handler upgrades requests to websocket connections
func (h *WebSocketHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("WebSocket upgrade failed", logger.Error(err))
			return
		}
		client := &Client{ID: uuid.NewString(), conn: conn, messages: make(chan []byte, clientBuffer)}

		hello := Event{
			Type:      EventHello,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"client_id": client.ID},
		}
		if msg, err := hello.Marshal(); err == nil {
			client.messages <- msg
		}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go h.readPump(client)
		go h.writePump(client)
	})
}

// readPump drains the connection to process control frames and detect close
func (h *WebSocketHub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued messages and pings until the hub closes the queue
func (h *WebSocketHub) writePump(client *Client) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.messages:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
