package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds a single WebSocket send so one stalled client can't
// block the broadcast loop.
const writeTimeout = 5 * time.Second

// Connection is one WebSocket client and its channel subscriptions.
//
// subscriptions is accessed without a lock: all reads and writes happen
// on the goroutine that owns the connection (HandleConnection's read loop
// and its deferred cleanup).
type Connection struct {
	ID            string
	conn          *websocket.Conn
	subscriptions map[string]bool
}

// ConnectionManager tracks WebSocket clients and broadcasts engine events
// to channel subscribers. One instance per process.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	channels    map[string]map[string]bool // channel → connection ids
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		channels:    make(map[string]map[string]bool),
	}
}

// subscribeMessage is the only client→server message: pick channels.
type subscribeMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// HandleConnection upgrades the request and runs the client's read loop
// until it disconnects.
func (m *ConnectionManager) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		ID:            uuid.New().String(),
		conn:          conn,
		subscriptions: make(map[string]bool),
	}
	m.register(c)
	defer m.unregister(c)

	slog.Debug("websocket client connected", "connection_id", c.ID)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil // client went away
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			for _, ch := range msg.Channels {
				c.subscriptions[ch] = true
				m.subscribe(c.ID, ch)
			}
		case "unsubscribe":
			for _, ch := range msg.Channels {
				delete(c.subscriptions, ch)
				m.unsubscribe(c.ID, ch)
			}
		}
	}
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, c.ID)
	for ch := range m.channels {
		delete(m.channels[ch], c.ID)
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) subscribe(connID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][connID] = true
}

func (m *ConnectionManager) unsubscribe(connID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels[channel], connID)
}

// Broadcast delivers an event to every subscriber of its channel. Send
// failures drop the client; the read loop's cleanup unregisters it.
func (m *ConnectionManager) Broadcast(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}

	m.mu.RLock()
	var targets []*Connection
	for connID := range m.channels[event.Channel] {
		if c, ok := m.connections[connID]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("dropping slow websocket client", "connection_id", c.ID)
			_ = c.conn.Close(websocket.StatusPolicyViolation, "write timeout")
		}
	}
}
