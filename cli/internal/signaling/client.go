package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morichikawa/echa25/cli/internal/dns"
	"github.com/morichikawa/echa25/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client or a lost connection.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	resolver  *dns.Resolver
	incoming  chan protocol.Outbound
	outgoing  chan protocol.Inbound
	done      chan struct{}
	closeOnce sync.Once

	// dead is closed once either pump stops.
	dead     chan struct{}
	deadOnce sync.Once
}

// NewClient creates a new signaling client. A nil resolver uses the default.
func NewClient(serverURL string, resolver *dns.Resolver) *Client {
	if resolver == nil {
		resolver = dns.NewResolver()
	}
	return &Client{
		serverURL: serverURL,
		resolver:  resolver,
		incoming:  make(chan protocol.Outbound, 32),
		outgoing:  make(chan protocol.Inbound, 32),
		done:      make(chan struct{}),
		dead:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server URL: scheme must be ws or wss, got %q", u.Scheme)
	}

	// Resolve through our DNS lookup with public fallback.
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: 15 * time.Second,
		NetDialContext:   c.resolver.DialContext,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads envelopes from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.lost()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Debug("Relay connection lost", "error", err)
			}
			return
		}

		msg, err := protocol.ParseOutbound(data)
		if err != nil {
			slog.Debug("Dropping malformed envelope", "error", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes envelopes to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.lost()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := protocol.Encode(message)
			if err != nil {
				slog.Error("Failed to encode envelope", "action", message.Action(), "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.dead:
			return
		}
	}
}

func (c *Client) lost() {
	c.deadOnce.Do(func() {
		close(c.dead)
	})
}

// Send queues an envelope for the relay. It fails with ErrClosed once the
// client is closed or the relay connection is gone.
func (c *Client) Send(msg protocol.Inbound) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	}
}

// Join asks the relay to place this connection in a room.
func (c *Client) Join(roomID, nickname, color string) error {
	return c.Send(protocol.JoinRequest{RoomID: roomID, Nickname: nickname, Color: color})
}

// Signal relays negotiation data to target, or to the whole room when
// target is empty.
func (c *Client) Signal(target string, d SignalData) error {
	data, err := EncodeSignalData(d)
	if err != nil {
		return err
	}
	return c.Send(protocol.SignalRequest{TargetUserID: target, Data: data})
}

// Incoming returns the channel of envelopes from the relay. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan protocol.Outbound {
	return c.incoming
}

// Close closes the WebSocket connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
