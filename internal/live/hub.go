package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 2 * time.Second
	// events queued per client before it counts as too slow and is dropped
	sendBuffer = 32
)

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected admin websocket. Each client has
// its own writer goroutine so Publish never waits on a socket.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]*client),
	}
}

func (h *Hub) Add(ws *websocket.Conn) {
	c := &client{ws: ws, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[ws] = c
	h.mu.Unlock()
	go h.writeLoop(c)
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	h.dropLocked(ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// dropLocked unregisters ws and stops its writer. Safe to call twice.
func (h *Hub) dropLocked(ws *websocket.Conn) {
	if c, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	for b := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.Debug("live write failed", zap.String("remote", c.ws.RemoteAddr().String()), zap.Error(err))
			// the read loop in WSHandler sees the close and calls Remove
			_ = c.ws.Close()
			for range c.send {
			}
			return
		}
	}
}

// Publish queues ev for all clients. A client whose queue is full is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("live event not serializable", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Debug("dropping slow live client", zap.String("remote", ws.RemoteAddr().String()))
			h.dropLocked(ws)
			_ = ws.Close()
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		h.dropLocked(ws)
		_ = ws.Close()
	}
}
