package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
	"github.com/michaelRS2002/AgoraX-Video/internal/signaling"
)

const readTimeout = 3 * time.Second

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := signaling.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheck)
	mux.HandleFunc("/ice", ServeICEConfig([]webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:19302"}},
	}))
	mux.HandleFunc("/ws", ServeWs(hub))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// dialPeer connects a websocket client and consumes the welcome message,
// returning the connection and the server-assigned identifier.
func dialPeer(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, protocol.MessageTypeWelcome, welcome.Type)
	require.NotEmpty(t, welcome.PeerID)
	return conn, welcome.PeerID
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(&protocol.Message{
		Type:   protocol.MessageTypeJoin,
		RoomID: roomID,
	}))
}

func TestMeshJoinChoreography(t *testing.T) {
	srv := startTestServer(t)

	connA, idA := dialPeer(t, srv)
	connB, idB := dialPeer(t, srv)

	// A joins the empty room and hears nothing until B arrives. The server
	// sends no join ack, so wait for A's join to be processed before B's is
	// written; otherwise the hub may see them in either order.
	join(t, connA, "r1")
	time.Sleep(100 * time.Millisecond)
	join(t, connB, "r1")

	fromA := readMessage(t, connA)
	assert.Equal(t, protocol.MessageTypePeerJoined, fromA.Type)
	assert.Equal(t, idB, fromA.PeerID)
	assert.False(t, fromA.Initiator, "the existing member waits for the offer")

	fromB := readMessage(t, connB)
	assert.Equal(t, protocol.MessageTypePeerJoined, fromB.Type)
	assert.Equal(t, idA, fromB.PeerID)
	assert.True(t, fromB.Initiator, "the newcomer initiates")
}

func TestDirectedSignalRelay(t *testing.T) {
	srv := startTestServer(t)

	connA, idA := dialPeer(t, srv)
	connB, _ := dialPeer(t, srv)
	connC, _ := dialPeer(t, srv)

	join(t, connA, "r1")
	join(t, connB, "r1")
	join(t, connC, "r1")

	// Drain the join announcements: every member ends up with exactly two,
	// one per other pair member, regardless of join processing order.
	readMessage(t, connA)
	readMessage(t, connA)
	readMessage(t, connB)
	readMessage(t, connB)
	readMessage(t, connC)
	readMessage(t, connC)

	// C offers to A: only A hears it, stamped with C's identity.
	offer, err := protocol.NewSignalMessage("r1", protocol.SignalPayload{
		Kind: protocol.SignalOffer,
		SDP:  "v=0 offer",
		To:   idA,
	})
	require.NoError(t, err)
	require.NoError(t, connC.WriteJSON(offer))

	relayed := readMessage(t, connA)
	assert.Equal(t, protocol.MessageTypeSignal, relayed.Type)
	assert.NotEmpty(t, relayed.From)

	payload, err := protocol.DecodeSignal(relayed)
	require.NoError(t, err)
	assert.Equal(t, "v=0 offer", payload.SDP)

	// B got nothing.
	require.NoError(t, connB.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray protocol.Message
	assert.Error(t, connB.ReadJSON(&stray), "directed signals never reach other members")
}

func TestDepartureNotice(t *testing.T) {
	srv := startTestServer(t)

	connA, idA := dialPeer(t, srv)
	connB, _ := dialPeer(t, srv)

	join(t, connA, "r1")
	join(t, connB, "r1")
	readMessage(t, connA)
	readMessage(t, connB)

	// Abrupt transport loss still produces the departure notice.
	connA.Close()

	left := readMessage(t, connB)
	assert.Equal(t, protocol.MessageTypePeerLeft, left.Type)
	assert.Equal(t, idA, left.PeerID)
}

func TestICEConfigEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/ice")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
