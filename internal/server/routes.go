package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
	"github.com/michaelRS2002/AgoraX-Video/internal/signaling"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// We need to check the origin, but for development, we can allow all.
	// In production, you'd check r.Header.Get("Origin") against your frontend's domain
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency. Every accepted connection gets a fresh
// server-assigned client ID, valid until the connection closes.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade connection", "err", err)
			return
		}

		client := &signaling.Client{
			Hub:  hub,
			Conn: conn,
			ID:   uuid.NewString(),
			Send: make(chan *protocol.Message, 256),
		}

		client.Hub.Register <- client

		// Start the client's read and write pumps in separate goroutines.
		// These handle the client's lifecycle.
		go client.WritePump()
		go client.ReadPump()
	}
}

// iceConfig is the body of the /ice endpoint: the connectivity servers a
// client should hand to its peer connections.
type iceConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// ServeICEConfig returns the handler for the /ice endpoint. An empty server
// list is a valid response; clients degrade to host candidates only.
func ServeICEConfig(servers []webrtc.ICEServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(iceConfig{ICEServers: servers}); err != nil {
			slog.Error("failed to write ice config", "err", err)
		}
	}
}

// HealthCheck reports liveness for load balancers and probes.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}
