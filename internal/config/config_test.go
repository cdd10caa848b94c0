package config

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("AGORAX_DOMAIN", "env.example.com")
	t.Setenv("STUN_SERVER", "stun:env.example.com:3478")

	// Flags beat the environment.
	cfg, err := Load(Options{Domain: "flag.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "flag.example.com", cfg.Domain)
	assert.Equal(t, "wss://flag.example.com/ws", cfg.WebSocketURL)
	assert.Equal(t, "stun:env.example.com:3478", cfg.STUNServer)

	// Environment beats defaults.
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.Domain)
}

func TestLoadDefaultsToLocalSchemes(t *testing.T) {
	cfg, err := Load(Options{Domain: "localhost:9000"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.WebSocketURL)
	assert.Equal(t, "http://localhost:9000/ice", cfg.ICEConfigURL)
}

func TestICEServers(t *testing.T) {
	cfg := &Config{STUNServer: "stun:stun.example.com:19302"}
	servers := cfg.ICEServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:19302"}, servers[0].URLs)

	cfg.TURNServer = "turn:turn.example.com"
	cfg.TURNUser = "alice"
	cfg.TURNPass = "secret"
	servers = cfg.ICEServers()
	require.Len(t, servers, 2)
	assert.Equal(t, "alice", servers[1].Username)
	assert.Contains(t, servers[1].URLs[0], "turn:turn.example.com")
}

func TestFetchICEServersDegradesToEmpty(t *testing.T) {
	// Unreachable endpoint: no servers, no error surfaced.
	assert.Nil(t, FetchICEServers("http://127.0.0.1:1/ice"))

	// Server-side failure likewise.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	assert.Nil(t, FetchICEServers(srv.URL))

	// Garbage body likewise.
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv2.Close()
	assert.Nil(t, FetchICEServers(srv2.URL))
}

func TestFetchICEServersParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"iceServers":[{"urls":["stun:stun.example.com:19302"]}]}`))
	}))
	defer srv.Close()

	servers := FetchICEServers(srv.URL)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:19302"}, servers[0].URLs)
}
