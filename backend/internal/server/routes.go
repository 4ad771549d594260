package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morichikawa/echa25/backend/internal/config"
	"github.com/morichikawa/echa25/backend/internal/signaling"
)

func newUpgrader(cfg *config.Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
}

// Routes wires every relay endpoint onto a new mux.
func Routes(hub *signaling.Hub, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /rooms", RoomsHandler(hub))
	mux.HandleFunc("GET /ws", ServeWs(hub, cfg))
	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Relay is healthy."))
}

// RoomsHandler returns the live rooms with their rosters as JSON.
func RoomsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Snapshot(r.Context())
		if err != nil {
			slog.Error("Failed to list rooms", "error", err)
			http.Error(w, "failed to list rooms", http.StatusInternalServerError)
			return
		}
		if rooms == nil {
			rooms = []signaling.Room{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rooms); err != nil {
			slog.Debug("Failed to write rooms", "error", err)
		}
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
func ServeWs(hub *signaling.Hub, cfg *config.Config) http.HandlerFunc {
	upgrader := newUpgrader(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := signaling.NewClient(hub, conn, uuid.NewString(), cfg.SendBuffer)
		hub.Register(client)

		// The pumps own the connection from here on.
		go client.WritePump()
		go client.ReadPump()
	}
}
