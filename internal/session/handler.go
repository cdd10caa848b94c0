package session

import (
	"encoding/json"
	"log/slog"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
)

// PeerAnnounce is a peer_joined notification. Initiator reports whether the
// local side is expected to start negotiation toward the announced peer:
// true only for the announces a newcomer receives about pre-existing members.
type PeerAnnounce struct {
	PeerID    string
	Initiator bool
}

// IncomingSignal is a relayed, already-validated signaling payload.
type IncomingSignal struct {
	From    string
	Payload *protocol.SignalPayload
}

// Handler routes incoming signaling messages to appropriate channels.
type Handler struct {
	client     *Client
	Welcome    chan string
	PeerJoined chan PeerAnnounce
	PeerLeft   chan string
	Signal     chan *IncomingSignal
	Error      chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		Welcome:    make(chan string, 1),
		PeerJoined: make(chan PeerAnnounce, 16),
		PeerLeft:   make(chan string, 16),
		Signal:     make(chan *IncomingSignal, 32),
		Error:      make(chan string, 4),
	}
}

// Start begins listening to incoming messages and routing them.
// It returns when the connection closes.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {

		switch msg.Type {

		case protocol.MessageTypeWelcome:
			h.Welcome <- msg.PeerID

		case protocol.MessageTypePeerJoined:
			h.PeerJoined <- PeerAnnounce{PeerID: msg.PeerID, Initiator: msg.Initiator}

		case protocol.MessageTypePeerLeft:
			h.PeerLeft <- msg.PeerID

		case protocol.MessageTypeSignal:
			h.handleSignal(msg)

		case protocol.MessageTypeError:
			h.handleError(msg)

		default:
			slog.Debug("ignoring unknown message type", "type", msg.Type)
		}
	}
}

// handleSignal validates the relayed payload before it reaches the
// negotiation engine. Malformed or unaddressed signals are dropped here.
func (h *Handler) handleSignal(msg *protocol.Message) {
	if msg.From == "" {
		slog.Debug("dropping signal without sender")
		return
	}

	payload, err := protocol.DecodeSignal(msg)
	if err != nil {
		slog.Debug("dropping malformed signal", "from", msg.From, "err", err)
		return
	}

	h.Signal <- &IncomingSignal{From: msg.From, Payload: payload}
}

// handleError parses the error message and sends it through the Error channel.
func (h *Handler) handleError(msg *protocol.Message) {
	var errPayload protocol.ErrorPayload

	if err := json.Unmarshal(msg.Payload, &errPayload); err != nil || errPayload.Error == "" {
		h.Error <- "unknown error from server"
		return
	}

	h.Error <- errPayload.Error
}
