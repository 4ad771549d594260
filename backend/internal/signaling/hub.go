package signaling

import (
	"context"
	"log/slog"
	"sync"

	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/protocol"
)

// HubOptions configures a Hub. Zero values fall back to defaults.
type HubOptions struct {
	// Workers is the number of room sequencer goroutines.
	Workers int
	// QueueSize bounds the pending operations per worker.
	QueueSize int
	Registry  Options
}

// envelope is an inbound message tagged with the client that sent it.
type envelope struct {
	client *Client
	msg    protocol.Inbound
}

// Hub is the central brain of the relay server.
// It owns the set of live clients and routes their requests to the Registry.
type Hub struct {
	registry *Registry
	seq      *Sequencer

	register   chan *Client
	unregister chan *Client
	inbound    chan envelope
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a Hub whose registry is backed by st.
func NewHub(st store.Store, opts HubOptions) *Hub {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	h := &Hub{
		seq:        NewSequencer(opts.Workers, opts.QueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan envelope),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
	h.registry = NewRegistry(st, h, opts.Registry)
	return h
}

// Registry exposes the hub's room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register hands a newly upgraded client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister tells the hub that the client's connection is closed.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit queues an inbound envelope from c.
func (h *Hub) Submit(c *Client, msg protocol.Inbound) {
	select {
	case h.inbound <- envelope{client: c, msg: msg}:
	case <-h.done:
	}
}

// Post implements Gateway.
func (h *Hub) Post(_ context.Context, connID string, msg protocol.Outbound) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrGone
	}
	return c.deliver(msg)
}

// Run starts the hub's main processing loop.
// This is the single goroutine that owns client membership and routing;
// room state changes run on the sequencer, one worker per room.
func (h *Hub) Run(ctx context.Context) {
	h.seq.Start()
	defer func() {
		close(h.done)
		h.seq.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.attach(ctx, client)

		case client := <-h.unregister:
			h.detach(ctx, client)

		case env := <-h.inbound:
			h.dispatch(ctx, env)
		}
	}
}

func (h *Hub) attach(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	if err := h.registry.Attach(ctx, c.ID); err != nil {
		slog.Error("Failed to record connection", "connection", c.ID, "error", err)
		return
	}
	slog.Debug("Client registered", "connection", c.ID, "addr", c.remoteAddr())
}

func (h *Hub) detach(ctx context.Context, c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID]
	if ok && current == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
	if !ok || current != c {
		return
	}

	c.close()
	slog.Debug("Client unregistered", "connection", c.ID, "room", c.room)

	room := c.room
	c.room = ""
	h.run(room, func() {
		if err := h.registry.Disconnect(ctx, c.ID); err != nil {
			slog.Error("Disconnect failed", "connection", c.ID, "error", err)
		}
	})
}

func (h *Hub) dispatch(ctx context.Context, env envelope) {
	c := env.client

	switch msg := env.msg.(type) {
	case protocol.JoinRequest:
		if err := msg.Validate(); err != nil {
			slog.Info("Room join rejected", "connection", c.ID, "error", err)
			h.reject(ctx, c, ErrInvalidInput, err)
			return
		}

		if prev := c.room; prev != "" {
			h.run(prev, func() {
				if err := h.registry.Leave(ctx, c.ID, prev); err != nil {
					slog.Error("Leave failed", "connection", c.ID, "room", prev, "error", err)
				}
			})
		}
		c.room = msg.RoomID

		h.run(msg.RoomID, func() {
			if _, err := h.registry.Join(ctx, c.ID, msg); err != nil {
				slog.Error("Join failed", "connection", c.ID, "room", msg.RoomID, "error", err)
				h.reject(ctx, c, err, nil)
			}
		})

	case protocol.SignalRequest:
		h.run(c.room, func() {
			if _, err := h.registry.Signal(ctx, c.ID, msg); err != nil {
				slog.Info("Signal rejected", "connection", c.ID, "error", err)
				h.reject(ctx, c, err, nil)
			}
		})

	default:
		slog.Warn("Unknown inbound message", "connection", c.ID, "action", env.msg.Action())
	}
}

// run executes task on the room's worker, or inline when the client is not
// in a room and no room state can be touched.
func (h *Hub) run(room string, task func()) {
	if room == "" {
		task()
		return
	}
	h.seq.Do(room, task)
}

func (h *Hub) reject(ctx context.Context, c *Client, kind error, detail error) {
	env := errorEnvelope(kind)
	if detail != nil {
		env.Message = detail.Error()
	}
	if err := h.Post(ctx, c.ID, env); err != nil {
		slog.Debug("Failed to deliver error", "connection", c.ID, "error", err)
	}
}

// Snapshot lists the current rooms.
func (h *Hub) Snapshot(ctx context.Context) ([]Room, error) {
	return h.registry.Snapshot(ctx)
}
