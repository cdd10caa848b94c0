package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream is the rendering handle for one peer's inbound media. It is
// materialized lazily, the first time a track arrives for that peer.
type RemoteStream struct {
	PeerID string
	Tracks []*webrtc.TrackRemote
}

// TrackHandler is invoked for every inbound remote track, after the owning
// RemoteStream has been updated. It runs on pion's callback goroutine.
type TrackHandler func(peerID string, track *webrtc.TrackRemote)

// Registry owns every PeerLink and remote media handle of one session.
// It is an instance per session, never process-wide state, so independent
// sessions can coexist in one process.
type Registry struct {
	mu      sync.Mutex
	links   map[string]*PeerLink
	streams map[string]*RemoteStream

	// Candidates that arrive before their PeerLink exists are parked here
	// per peer and flushed into the link when it is created.
	early map[string][]webrtc.ICECandidateInit

	newConn func() (PeerConnection, error)
	media   *LocalMedia
	onTrack TrackHandler
}

// NewRegistry creates a registry that builds connections with newConn and
// attaches the given local media to each.
func NewRegistry(newConn func() (PeerConnection, error), media *LocalMedia) *Registry {
	return &Registry{
		links:   make(map[string]*PeerLink),
		streams: make(map[string]*RemoteStream),
		early:   make(map[string][]webrtc.ICECandidateInit),
		newConn: newConn,
		media:   media,
	}
}

// OnRemoteTrack registers the handler invoked when inbound media arrives.
// Must be called before the first link is created.
func (r *Registry) OnRemoteTrack(h TrackHandler) {
	r.onTrack = h
}

// GetOrCreate returns the existing PeerLink for peerID or constructs one,
// attaching all currently-held local tracks and flushing any buffered
// candidates. At most one link per remote peer ever exists.
func (r *Registry) GetOrCreate(peerID string, send SignalSender) (*PeerLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if link, ok := r.links[peerID]; ok {
		return link, nil
	}

	conn, err := r.newConn()
	if err != nil {
		return nil, fmt.Errorf("create peer connection for %s: %w", peerID, err)
	}

	if r.media != nil {
		for _, track := range r.media.Tracks() {
			if _, err := conn.AddTrack(track); err != nil {
				conn.Close()
				return nil, fmt.Errorf("attach local track for %s: %w", peerID, err)
			}
		}
	}

	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		r.trackArrived(peerID, track)
	})

	link := newPeerLink(peerID, conn, send)
	r.links[peerID] = link

	for _, c := range r.early[peerID] {
		link.AddCandidate(c)
	}
	delete(r.early, peerID)

	return link, nil
}

// Get returns the link for peerID if one exists.
func (r *Registry) Get(peerID string) (*PeerLink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[peerID]
	return link, ok
}

// AddCandidate routes a remote candidate to its link, or buffers it when the
// link has not been materialized yet.
func (r *Registry) AddCandidate(peerID string, candidate webrtc.ICECandidateInit) {
	r.mu.Lock()
	link, ok := r.links[peerID]
	if !ok {
		r.early[peerID] = append(r.early[peerID], candidate)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	link.AddCandidate(candidate)
}

// Remove closes the link for peerID and discards its media handle and any
// buffered candidates. Idempotent: removing an unknown peer does nothing.
func (r *Registry) Remove(peerID string) {
	r.mu.Lock()
	link, ok := r.links[peerID]
	delete(r.links, peerID)
	delete(r.streams, peerID)
	delete(r.early, peerID)
	r.mu.Unlock()

	if !ok {
		return
	}

	link.Close()
	slog.Debug("removed peer link", "peer", peerID)
}

// Stream returns the lazily-created remote media handle for peerID, if any
// inbound media has arrived. For rendering purposes only.
func (r *Registry) Stream(peerID string) (*RemoteStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stream, ok := r.streams[peerID]
	return stream, ok
}

// Peers lists the peer IDs with a live link.
func (r *Registry) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.links))
	for id := range r.links {
		out = append(out, id)
	}
	return out
}

// Close tears down every link. Used on session shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	links := make([]*PeerLink, 0, len(r.links))
	for _, link := range r.links {
		links = append(links, link)
	}
	r.links = make(map[string]*PeerLink)
	r.streams = make(map[string]*RemoteStream)
	r.early = make(map[string][]webrtc.ICECandidateInit)
	r.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
}

func (r *Registry) trackArrived(peerID string, track *webrtc.TrackRemote) {
	r.mu.Lock()
	stream, ok := r.streams[peerID]
	if !ok {
		stream = &RemoteStream{PeerID: peerID}
		r.streams[peerID] = stream
	}
	stream.Tracks = append(stream.Tracks, track)
	handler := r.onTrack
	r.mu.Unlock()

	if handler != nil {
		handler(peerID, track)
	}
}
