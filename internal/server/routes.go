package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/relay"
)

// NewUpgrader builds the websocket upgrader. An empty allow-list accepts
// every origin.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (the terminal client) send no Origin.
				return true
			}
			for _, a := range allowed {
				if strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket and
// attaches the connection to the hub.
func ServeWs(hub *relay.Hub, cfg *config.ServerConfig) http.HandlerFunc {
	upgrader := NewUpgrader(cfg.AllowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := relay.NewClient(hub, conn, cfg.SendQueue)
		if cfg.MaxMessageSize > 0 {
			client.ReadLimit = cfg.MaxMessageSize
		}

		if !hub.Attach(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

// HealthCheck reports liveness plus room and connection counts.
func HealthCheck(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
			relay.Stats
		}{Status: "ok", Stats: hub.Stats()})
	}
}

// NewMux wires the relay routes. Static files are served at / when
// cfg.StaticDir is set.
func NewMux(hub *relay.Hub, cfg *config.ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheck(hub))
	mux.HandleFunc("/ws", ServeWs(hub, cfg))
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}
	return mux
}
