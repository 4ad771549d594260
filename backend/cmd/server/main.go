package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/morichikawa/echa25/backend/internal/config"
	"github.com/morichikawa/echa25/backend/internal/server"
	"github.com/morichikawa/echa25/backend/internal/signaling"
	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/logging"
	"github.com/morichikawa/echa25/internal/version"
)

var opts config.Options

var rootCmd = &cobra.Command{
	Use:     "echa-relay",
	Short:   "Signaling relay for the echa whiteboard",
	Long:    `echa-relay keeps the room rosters of the echa whiteboard and forwards WebRTC signaling between participants. Drawing data never passes through it.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&opts.Path, "config", "", "Path to a TOML config file")
	rootCmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default :8080)")
	rootCmd.Flags().DurationVar(&opts.RecordTTL, "ttl", 0, "Lifetime of connection records (default 1h)")
	rootCmd.Flags().DurationVar(&opts.SweepInterval, "sweep", 0, "Expired record sweep interval (default 1m)")
	rootCmd.Flags().IntVar(&opts.Workers, "workers", 0, "Room sequencer workers (default 8)")
	rootCmd.Flags().IntVar(&opts.QueueSize, "queue", 0, "Pending operations per worker (default 256)")
	rootCmd.Flags().IntVar(&opts.SendBuffer, "send-buffer", 0, "Outbound buffer per connection (default 256)")
	rootCmd.Flags().StringSliceVar(&opts.AllowedOrigins, "origin", nil, "Allowed websocket origins (default any)")
}

func serve(ctx context.Context, cfg *config.Config) error {
	st := store.NewMemoryStore(nil)
	go st.Run(ctx, cfg.SweepInterval)

	hub := signaling.NewHub(st, signaling.HubOptions{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Registry:  signaling.Options{TTL: cfg.RecordTTL},
	})
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting relay", "addr", cfg.Addr, "version", version.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	logging.Init(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Relay failed", "error", err)
		os.Exit(1)
	}
}
