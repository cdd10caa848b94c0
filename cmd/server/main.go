package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/michaelRS2002/AgoraX-Video/internal/config"
	"github.com/michaelRS2002/AgoraX-Video/internal/logging"
	"github.com/michaelRS2002/AgoraX-Video/internal/server"
	"github.com/michaelRS2002/AgoraX-Video/internal/signaling"
)

func main() {
	logging.Init()

	addr := flag.String("addr", defaultAddr(), "listen address")
	flag.Parse()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Create the hub and start its event loop. Every room mutation and
	// relay decision happens on that single goroutine.
	hub := signaling.NewHub()
	go hub.Run()

	http.HandleFunc("/health", server.HealthCheck)
	http.HandleFunc("/ice", server.ServeICEConfig(cfg.ICEServers()))
	http.HandleFunc("/ws", server.ServeWs(hub))

	slog.Info("starting signaling server", "addr", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}
