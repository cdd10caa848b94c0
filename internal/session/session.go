package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/michaelRS2002/AgoraX-Video/internal/config"
	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
)

// welcomeTimeout bounds how long Join waits for the server to assign us an
// identifier after the websocket is up.
const welcomeTimeout = 10 * time.Second

// Session is one client's participation in one room: the signaling
// connection, the registry of peer links, and the shared local media.
// A process may run any number of independent sessions.
type Session struct {
	cfg      *config.Config
	client   *Client
	handler  *Handler
	registry *Registry
	media    *LocalMedia

	mu     sync.Mutex
	id     string
	roomID string

	done      chan struct{}
	closeOnce sync.Once
}

// New acquires local media and prepares a session against the configured
// signaling server. Media acquisition failure is fatal and surfaced here;
// a missing or empty ICE configuration is not, it only degrades traversal.
func New(cfg *config.Config) (*Session, error) {
	media, err := AcquireLocalMedia()
	if err != nil {
		return nil, fmt.Errorf("local media unavailable: %w", err)
	}

	iceServers := config.FetchICEServers(cfg.ICEConfigURL)
	if len(iceServers) == 0 {
		slog.Warn("no ice servers configured, continuing with host candidates only")
	}

	webrtcConfig := webrtc.Configuration{ICEServers: iceServers}
	newConn := func() (PeerConnection, error) {
		return webrtc.NewPeerConnection(webrtcConfig)
	}

	s := &Session{
		cfg:      cfg,
		client:   NewClient(cfg.WebSocketURL),
		media:    media,
		done:     make(chan struct{}),
	}
	s.registry = NewRegistry(newConn, media)
	s.handler = NewHandler(s.client)
	return s, nil
}

// Join connects to the signaling server, waits for the server-assigned
// identifier, and enters the room. The session then reacts to announces and
// relayed signals until Close. A session joins exactly one room.
func (s *Session) Join(roomID string) error {
	s.mu.Lock()
	if s.roomID != "" {
		s.mu.Unlock()
		return fmt.Errorf("session already joined room %s", s.roomID)
	}
	s.mu.Unlock()

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect to signaling server: %w", err)
	}
	go s.handler.Start()

	select {
	case id := <-s.handler.Welcome:
		s.mu.Lock()
		s.id = id
		s.roomID = roomID
		s.mu.Unlock()
	case <-time.After(welcomeTimeout):
		return fmt.Errorf("timed out waiting for server welcome")
	}

	s.client.SendMessage(&protocol.Message{
		Type:   protocol.MessageTypeJoin,
		RoomID: roomID,
	})

	go s.run()
	return nil
}

// ID returns the server-assigned client identifier, empty before Join.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Media returns the shared local capture.
func (s *Session) Media() *LocalMedia {
	return s.media
}

// Registry exposes the connection registry, for rendering and inspection.
func (s *Session) Registry() *Registry {
	return s.registry
}

// OnRemoteTrack registers the inbound media handler. Call before Join.
func (s *Session) OnRemoteTrack(h TrackHandler) {
	s.registry.OnRemoteTrack(h)
}

// run is the session's event loop. Inbound signals for one peer are applied
// in arrival order; offer initiation toward different peers runs in
// parallel, each negotiation confined to its own PeerLink.
func (s *Session) run() {
	for {
		select {
		case announce := <-s.handler.PeerJoined:
			slog.Info("peer joined", "peer", announce.PeerID, "initiator", announce.Initiator)
			if announce.Initiator {
				go s.initiate(announce.PeerID)
			}

		case sig := <-s.handler.Signal:
			s.dispatch(sig)

		case peerID := <-s.handler.PeerLeft:
			slog.Info("peer left", "peer", peerID)
			s.registry.Remove(peerID)

		case errText := <-s.handler.Error:
			slog.Warn("server error", "err", errText)

		case <-s.done:
			return
		}
	}
}

// initiate runs the caller path toward one announced peer.
func (s *Session) initiate(peerID string) {
	link, err := s.registry.GetOrCreate(peerID, s.sendSignal)
	if err != nil {
		slog.Error("failed to create peer link", "peer", peerID, "err", err)
		return
	}
	if err := link.SendOffer(); err != nil {
		slog.Error("failed to send offer", "peer", peerID, "err", err)
	}
}

// dispatch routes one relayed signal to the matching peer link. Signals for
// unknown peers follow the stale-reference rules: offers materialize a link,
// answers are dropped, candidates are buffered.
func (s *Session) dispatch(sig *IncomingSignal) {
	switch sig.Payload.Kind {
	case protocol.SignalOffer:
		link, err := s.registry.GetOrCreate(sig.From, s.sendSignal)
		if err != nil {
			slog.Error("failed to create peer link", "peer", sig.From, "err", err)
			return
		}
		if err := link.HandleOffer(sig.Payload.SDP); err != nil {
			slog.Error("failed to answer offer", "peer", sig.From, "err", err)
		}

	case protocol.SignalAnswer:
		link, ok := s.registry.Get(sig.From)
		if !ok {
			slog.Debug("dropping answer for unknown peer", "peer", sig.From)
			return
		}
		if err := link.HandleAnswer(sig.Payload.SDP); err != nil {
			slog.Error("failed to apply answer", "peer", sig.From, "err", err)
		}

	case protocol.SignalCandidate:
		s.registry.AddCandidate(sig.From, *sig.Payload.Candidate)
	}
}

// sendSignal relays one payload through the signaling server.
func (s *Session) sendSignal(payload protocol.SignalPayload) {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()

	msg, err := protocol.NewSignalMessage(roomID, payload)
	if err != nil {
		slog.Error("failed to encode signal", "err", err)
		return
	}
	s.client.SendMessage(msg)
}

// Close tears down every peer link and the signaling connection. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.registry.Close()
		s.client.Close()
	})
}
