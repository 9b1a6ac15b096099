// Package stream broadcasts morph weights to WebSocket clients so a browser
// front-end can render the face, and serves health and metrics endpoints.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/lipsync"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Message is the JSON sent once per frame.
type Message struct {
	Seq     uint64    `json:"seq"`
	TimeMs  float64   `json:"t"`
	State   string    `json:"state"`
	Session string    `json:"session"`
	Weights []float32 `json:"weights"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to every connected client. Slow clients are dropped
// rather than allowed to stall the frame loop.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	events   lipsync.Publisher

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) SetPublisher(p lipsync.Publisher) {
	h.events = p
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Render implements lipsync.Renderer.
func (h *Hub) Render(fr lipsync.RenderFrame) error {
	if h.Clients() == 0 {
		return nil
	}
	data, err := json.Marshal(Message{
		Seq:     fr.Seq,
		TimeMs:  float64(fr.Time) / float64(time.Millisecond),
		State:   fr.State.String(),
		Session: fr.SessionID,
		Weights: fr.Weights,
	})
	if err != nil {
		return err
	}
	h.broadcast(data)
	return nil
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	remote := conn.RemoteAddr().String()
	h.logger.Info().Str("remote", remote).Msg("Client connected")
	h.publish(bus.EventTypeClientConnected, remote)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client input and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		h.publish(bus.EventTypeClientDisconnected, c.conn.RemoteAddr().String())
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("Write failed")
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) publish(t bus.EventType, remote string) {
	if h.events == nil {
		return
	}
	h.events.Publish(bus.Event{Type: t, Data: map[string]any{"remote": remote}})
}

var _ lipsync.Renderer = (*Hub)(nil)
