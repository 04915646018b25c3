// Package telemetry carries step events out of a running session: to
// websocket subscribers and to a Discord webhook.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	clientBacklog = 64
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans step events out to every connected websocket client. A client
// that cannot keep up is disconnected rather than slowing the session.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	lock      sync.Mutex
	clients   map[*subscriber]struct{}
	broadcast chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*subscriber]struct{}),
		broadcast: make(chan []byte, 256),
	}
}

// Run delivers broadcasts until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-h.broadcast:
			h.lock.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("websocket client too slow, disconnecting",
						zap.String("remote", c.conn.RemoteAddr().String()))
					h.removeLocked(c)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Publish queues ev for broadcast. It never blocks the caller.
func (h *Hub) Publish(ev StepEvent) error {
	ev.ActionName = ev.Action.String()
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode step event: %w", err)
	}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return fmt.Errorf("hub backlog full, step %d dropped", ev.Step)
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &subscriber{conn: conn, send: make(chan []byte, clientBacklog)}

	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	h.log.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *subscriber) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump only watches for the client going away; inbound messages are
// discarded.
func (h *Hub) readPump(c *subscriber) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *subscriber) {
	h.lock.Lock()
	h.removeLocked(c)
	h.lock.Unlock()
}

func (h *Hub) removeLocked(c *subscriber) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}
