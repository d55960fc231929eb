package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"employee-chat-backend/config"
)

// Client is one live websocket session. identity and groups are owned by the
// Registry and must only be touched under its lock; the pumps and the send
// queue belong to the client itself.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	cfg  config.RelayConfig

	// sendMu serializes enqueue against close. Broadcasters fan out over
	// registry snapshots that can outlive the connection's removal, so the
	// send queue must never be closed while an enqueue is in flight.
	sendMu sync.Mutex
	closed bool

	// tokenEmployeeID is the identity proven by the upgrade token. The auth
	// frame must claim the same identity before broadcasts include this
	// connection.
	tokenEmployeeID int64

	// Guarded by Registry.mu.
	employeeID int64
	groups     map[int64]struct{}
}

// NewClient wraps an accepted websocket connection.
func NewClient(conn *websocket.Conn, tokenEmployeeID int64, cfg config.RelayConfig) *Client {
	return &Client{
		ID:              uuid.NewString(),
		conn:            conn,
		send:            make(chan []byte, cfg.SendBufferSize),
		cfg:             cfg,
		tokenEmployeeID: tokenEmployeeID,
		groups:          make(map[int64]struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. Returns false if
// the queue is full (the peer is too slow to keep up) or already closed; the
// caller is expected to unregister the connection when this returns false.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close shuts the send queue exactly once, which in turn stops the write
// pump. Safe to call from any goroutine any number of times; enqueue on a
// closed client reports failure instead of writing to a closed channel.
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames off the wire and feeds them to the router. It owns
// the unregister call for this connection: every exit path, clean or not,
// funnels through the deferred teardown.
func (c *Client) readPump(ctx context.Context, r *Router) {
	defer func() {
		r.registry.Unregister(c.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("connection %s read error: %v", c.ID, err)
			}
			return
		}
		r.HandleFrame(ctx, c, raw)
	}
}

// writePump drains the send queue onto the wire and keeps the heartbeat
// going. A closed send queue or any write error ends the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
