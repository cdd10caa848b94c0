package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// PeerID carries the subject of welcome/peer_joined/peer_left messages.
	PeerID string `json:"peer_id,omitempty"`

	// Initiator is set on the peer_joined announces a joining client
	// receives about pre-existing room members. The receiving side starts
	// negotiation toward those peers; everyone else waits for an offer.
	// This asymmetry is what keeps the protocol glare-free.
	Initiator bool `json:"initiator,omitempty"`

	// From is stamped by the server on relayed signal messages. Clients
	// never set it themselves.
	From string `json:"from,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoin   = "join"
	MessageTypeSignal = "signal"

	MessageTypeWelcome    = "welcome"
	MessageTypePeerJoined = "peer_joined"
	MessageTypePeerLeft   = "peer_left"
	MessageTypeError      = "error"
)

// Signal payload kinds. The set is closed: anything else is rejected at the
// transport boundary before it reaches a peer.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is the WebRTC signaling data carried inside a signal message:
// an SDP offer or answer, or a single ICE candidate.
type SignalPayload struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	// To addresses the payload to a single room member. When empty the
	// server delivers to every other member of the room.
	To string `json:"to,omitempty"`
}

// Validate rejects payloads whose kind is outside the closed offer/answer/
// candidate set, or whose kind-specific field is missing.
func (p *SignalPayload) Validate() error {
	switch p.Kind {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return fmt.Errorf("%s payload is missing sdp", p.Kind)
		}
	case SignalCandidate:
		if p.Candidate == nil {
			return fmt.Errorf("candidate payload is missing candidate")
		}
	default:
		return fmt.Errorf("unknown signal kind %q", p.Kind)
	}
	return nil
}

// ErrorPayload represents error messages from the server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewSignalMessage wraps a payload into a signal message for a room.
func NewSignalMessage(roomID string, payload SignalPayload) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal signal payload: %w", err)
	}
	return &Message{
		Type:    MessageTypeSignal,
		RoomID:  roomID,
		Payload: raw,
	}, nil
}

// DecodeSignal parses and validates the signal payload of a message.
func DecodeSignal(msg *Message) (*SignalPayload, error) {
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("signal message has no payload")
	}
	var payload SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode signal payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage builds a server error message.
func NewErrorMessage(text string) *Message {
	raw, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: MessageTypeError, Payload: raw}
}
