package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/morichikawa/echa25/cli/internal/canvas"
	"github.com/morichikawa/echa25/cli/internal/config"
	"github.com/morichikawa/echa25/cli/internal/dns"
	"github.com/morichikawa/echa25/cli/internal/mesh"
	"github.com/morichikawa/echa25/cli/internal/signaling"
	"github.com/morichikawa/echa25/internal/protocol"
)

// joinTimeout bounds the wait for the relay's joined acknowledgement.
const joinTimeout = 15 * time.Second

// ConnectionContext wires the relay connection, the envelope router and the
// peer coordinator of one whiteboard session.
type ConnectionContext struct {
	Client      *signaling.Client
	Handler     *signaling.Handler
	Coordinator *mesh.Coordinator
	Board       *canvas.Board
	Config      *config.Config
	RoomID      string

	cancel context.CancelFunc
}

// NewConnectionContext dials the relay and starts routing its pushes into a
// fresh coordinator for roomID. The session stops when ctx is cancelled,
// Close is called, or the relay goes away.
func NewConnectionContext(ctx context.Context, cfg *config.Config, roomID string) (*ConnectionContext, error) {
	codec, err := canvas.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	client := signaling.NewClient(cfg.ServerURL, dns.NewResolver())
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	turnUser, turnPass := cfg.GetTURNCredentials()
	board := canvas.NewBoard()
	coord := mesh.New(client, board, mesh.Session{
		RoomID:   roomID,
		Nickname: cfg.Nickname,
		Color:    cfg.Color,
	}, mesh.Options{
		NewTransport: mesh.NewPionFactory(mesh.ICEConfig{
			STUN:       cfg.GetSTUNServers(),
			TURN:       cfg.GetTURNServers(),
			Username:   turnUser,
			Credential: turnPass,
			ForceRelay: cfg.ForceRelay,
		}),
		Codec:              codec,
		RetryInterval:      cfg.RetryInterval,
		NegotiationTimeout: cfg.NegotiationTimeout,
		MaxBackoff:         cfg.MaxBackoff,
	})
	handler := signaling.NewHandler(client, coord)

	runCtx, cancel := context.WithCancel(ctx)
	go coord.Run(runCtx)
	go handler.Start()
	go func() {
		select {
		case <-handler.Done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	return &ConnectionContext{
		Client:      client,
		Handler:     handler,
		Coordinator: coord,
		Board:       board,
		Config:      cfg,
		RoomID:      roomID,
		cancel:      cancel,
	}, nil
}

// Join asks the relay for a seat in the room and waits for the answer.
func (c *ConnectionContext) Join(ctx context.Context) (protocol.Joined, error) {
	if err := c.Client.Join(c.RoomID, c.Config.Nickname, c.Config.Color); err != nil {
		return protocol.Joined{}, fmt.Errorf("send join: %w", err)
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	select {
	case joined := <-c.Handler.Joined:
		return joined, nil
	case rejected := <-c.Handler.Error:
		return protocol.Joined{}, fmt.Errorf("relay refused to join: %w", rejected)
	case <-c.Handler.Done:
		return protocol.Joined{}, fmt.Errorf("relay closed the connection")
	case <-timer.C:
		return protocol.Joined{}, fmt.Errorf("timed out waiting for the relay")
	case <-ctx.Done():
		return protocol.Joined{}, ctx.Err()
	}
}

// Close hangs up on the relay, stops the coordinator and waits for it to
// release every peer. The relay goes first so a coordinator blocked on a
// signal send is released.
func (c *ConnectionContext) Close() {
	c.cancel()
	c.Client.Close()
	<-c.Coordinator.Done()
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}
