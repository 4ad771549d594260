package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morichikawa/echa25/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP offers with many candidates
)

// Client is a wrapper for a single websocket connection (a Relay Bus channel).
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// ID is the transport-level connection id.
	ID string

	// Send is a buffered channel for all outbound envelopes.
	// Registry workers write to it, and WritePump drains it to the websocket.
	Send chan protocol.Outbound

	// room is the room the hub last routed a join to. Only the hub
	// goroutine touches it.
	room string

	mu     sync.RWMutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, id string, buffer int) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		ID:   id,
		Send: make(chan protocol.Outbound, buffer),
	}
}

// deliver queues msg without blocking.
func (c *Client) deliver(msg protocol.Outbound) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrGone
	}
	select {
	case c.Send <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// replyError tells the connection its envelope was refused. Delivery
// failures only mean the connection is going away or not reading.
func (c *Client) replyError(err error) {
	if derr := c.deliver(errorEnvelope(err)); derr != nil {
		slog.Debug("Failed to deliver error", "connection", c.ID, "error", derr)
	}
}

// close stops WritePump. Later deliveries fail with ErrGone.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) remoteAddr() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump pumps envelopes from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.Hub.Registry().Touch(context.Background(), c.ID); err != nil {
			slog.Debug("Failed to refresh connection", "connection", c.ID, "error", err)
		}
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Unexpected close", "connection", c.ID, "error", err)
			}
			return
		}

		msg, err := protocol.ParseInbound(data)
		if err != nil {
			slog.Debug("Dropping malformed envelope", "connection", c.ID, "error", err)
			c.replyError(err)
			continue
		}

		c.Hub.Submit(c, msg)
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := protocol.Encode(message)
			if err != nil {
				slog.Error("Failed to encode envelope", "connection", c.ID, "type", message.Type(), "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Write failed", "connection", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
