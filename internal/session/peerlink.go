package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
)

// LinkState is the negotiation state of a PeerLink.
type LinkState int

const (
	// LinkIdle: the link exists but no description has been exchanged.
	LinkIdle LinkState = iota

	// LinkHaveLocalOffer: we sent an offer and are waiting for the answer.
	LinkHaveLocalOffer

	// LinkHaveRemoteOffer: we received an offer and are producing the answer.
	LinkHaveRemoteOffer

	// LinkStable: both descriptions are applied; media can flow.
	LinkStable

	// LinkClosed: torn down. Every operation on a closed link is a no-op.
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkHaveLocalOffer:
		return "have-local-offer"
	case LinkHaveRemoteOffer:
		return "have-remote-offer"
	case LinkStable:
		return "stable"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnection is the slice of *webrtc.PeerConnection the negotiation
// engine drives. Keeping it an interface lets tests substitute a fake.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// SignalSender delivers a signaling payload to the server for relay.
type SignalSender func(payload protocol.SignalPayload)

// PeerLink is the negotiation and media relationship with exactly one remote
// peer. All transitions are serialized behind mu, so a burst of signaling
// messages for the same peer applies in arrival order.
type PeerLink struct {
	PeerID string

	mu        sync.Mutex
	state     LinkState
	conn      PeerConnection
	send      SignalSender
	remoteSet bool

	// Candidates received before the remote description is applied are held
	// here and flushed afterwards, instead of being rejected by the
	// connection.
	pending []webrtc.ICECandidateInit
}

func newPeerLink(peerID string, conn PeerConnection, send SignalSender) *PeerLink {
	l := &PeerLink{
		PeerID: peerID,
		state:  LinkIdle,
		conn:   conn,
		send:   send,
	}

	// Locally discovered candidates go to the remote side in any state
	// except closed.
	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if l.State() == LinkClosed {
			return
		}
		init := c.ToJSON()
		l.send(protocol.SignalPayload{
			Kind:      protocol.SignalCandidate,
			Candidate: &init,
			To:        peerID,
		})
	})

	return l
}

// State returns the current negotiation state.
func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SendOffer runs the caller path: create an offer, apply it locally, then
// address it to the remote peer. Only valid from the idle state.
func (l *PeerLink) SendOffer() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != LinkIdle {
		return nil
	}

	offer, err := l.conn.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer for %s: %w", l.PeerID, err)
	}
	if err := l.conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("apply local offer for %s: %w", l.PeerID, err)
	}

	l.state = LinkHaveLocalOffer
	l.send(protocol.SignalPayload{
		Kind: protocol.SignalOffer,
		SDP:  offer.SDP,
		To:   l.PeerID,
	})
	return nil
}

// HandleOffer runs the callee path: apply the remote offer, produce and apply
// the answer, send it back. Offers arriving in any state but idle are
// dropped; the protocol never produces them.
func (l *PeerLink) HandleOffer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != LinkIdle {
		slog.Debug("dropping offer", "peer", l.PeerID, "state", l.state)
		return nil
	}

	if err := l.applyRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("apply remote offer from %s: %w", l.PeerID, err)
	}
	l.state = LinkHaveRemoteOffer

	answer, err := l.conn.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer for %s: %w", l.PeerID, err)
	}
	if err := l.conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("apply local answer for %s: %w", l.PeerID, err)
	}

	l.state = LinkStable
	l.send(protocol.SignalPayload{
		Kind: protocol.SignalAnswer,
		SDP:  answer.SDP,
		To:   l.PeerID,
	})
	return nil
}

// HandleAnswer completes the caller path. Answers in any other state are
// stale and dropped.
func (l *PeerLink) HandleAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != LinkHaveLocalOffer {
		slog.Debug("dropping answer", "peer", l.PeerID, "state", l.state)
		return nil
	}

	if err := l.applyRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("apply remote answer from %s: %w", l.PeerID, err)
	}

	l.state = LinkStable
	return nil
}

// applyRemote sets the remote description and flushes any candidates that
// arrived before it. Must be called with mu held.
func (l *PeerLink) applyRemote(desc webrtc.SessionDescription) error {
	if err := l.conn.SetRemoteDescription(desc); err != nil {
		return err
	}
	l.remoteSet = true

	for _, c := range l.pending {
		if err := l.conn.AddICECandidate(c); err != nil {
			slog.Debug("ignoring rejected candidate", "peer", l.PeerID, "err", err)
		}
	}
	l.pending = nil
	return nil
}

// AddCandidate applies a remote candidate, buffering it when the remote
// description is not in place yet. A rejected candidate is logged and
// ignored; it never aborts the link.
func (l *PeerLink) AddCandidate(candidate webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkClosed {
		return
	}

	if !l.remoteSet {
		l.pending = append(l.pending, candidate)
		return
	}

	if err := l.conn.AddICECandidate(candidate); err != nil {
		slog.Debug("ignoring rejected candidate", "peer", l.PeerID, "err", err)
	}
}

// Close releases the underlying connection. Idempotent; after it returns,
// any pending asynchronous step observes the closed state and becomes a
// no-op.
func (l *PeerLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkClosed {
		return
	}

	l.state = LinkClosed
	l.pending = nil
	if err := l.conn.Close(); err != nil {
		slog.Debug("closing peer connection", "peer", l.PeerID, "err", err)
	}
}
