package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
)

// fakeConn stands in for a pion peer connection. Like the real one, it
// rejects candidates until a remote description has been applied.
type fakeConn struct {
	mu             sync.Mutex
	localDesc      *webrtc.SessionDescription
	remoteDesc     *webrtc.SessionDescription
	candidates     []webrtc.ICECandidateInit
	tracks         []webrtc.TrackLocal
	closed         bool
	failCandidates bool

	onICECandidate func(*webrtc.ICECandidate)
	onTrack        func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (f *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (f *fakeConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDesc == nil {
		return webrtc.SessionDescription{}, errors.New("no remote description")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (f *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localDesc = &desc
	return nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &desc
	return nil
}

func (f *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDesc == nil {
		return errors.New("remote description is not set")
	}
	if f.failCandidates {
		return errors.New("candidate rejected")
	}
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeConn) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return nil, nil
}

func (f *fakeConn) OnICECandidate(h func(*webrtc.ICECandidate)) { f.onICECandidate = h }

func (f *fakeConn) OnTrack(h func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { f.onTrack = h }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// signalRecorder captures everything the link hands to the signaling layer.
type signalRecorder struct {
	mu       sync.Mutex
	payloads []protocol.SignalPayload
}

func (r *signalRecorder) send(payload protocol.SignalPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *signalRecorder) all() []protocol.SignalPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.SignalPayload(nil), r.payloads...)
}

func TestCallerPath(t *testing.T) {
	fc := &fakeConn{}
	rec := &signalRecorder{}
	link := newPeerLink("b", fc, rec.send)

	require.NoError(t, link.SendOffer())
	assert.Equal(t, LinkHaveLocalOffer, link.State())

	sent := rec.all()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.SignalOffer, sent[0].Kind)
	assert.Equal(t, "fake-offer", sent[0].SDP)
	assert.Equal(t, "b", sent[0].To)
	require.NotNil(t, fc.localDesc, "local description must be applied before the offer is sent")

	require.NoError(t, link.HandleAnswer("remote-answer"))
	assert.Equal(t, LinkStable, link.State())
	require.NotNil(t, fc.remoteDesc)
	assert.Equal(t, "remote-answer", fc.remoteDesc.SDP)
}

func TestCalleePath(t *testing.T) {
	fc := &fakeConn{}
	rec := &signalRecorder{}
	link := newPeerLink("a", fc, rec.send)

	require.NoError(t, link.HandleOffer("remote-offer"))
	assert.Equal(t, LinkStable, link.State())

	sent := rec.all()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.SignalAnswer, sent[0].Kind)
	assert.Equal(t, "fake-answer", sent[0].SDP)
	assert.Equal(t, "a", sent[0].To)

	assert.Equal(t, "remote-offer", fc.remoteDesc.SDP)
	assert.Equal(t, "fake-answer", fc.localDesc.SDP)
}

func TestRepeatedSendOfferIsANoOp(t *testing.T) {
	fc := &fakeConn{}
	rec := &signalRecorder{}
	link := newPeerLink("b", fc, rec.send)

	require.NoError(t, link.SendOffer())
	require.NoError(t, link.SendOffer())

	assert.Len(t, rec.all(), 1)
}

func TestStaleAnswerIsDropped(t *testing.T) {
	fc := &fakeConn{}
	link := newPeerLink("b", fc, (&signalRecorder{}).send)

	// No offer in flight: the answer has nothing to match.
	require.NoError(t, link.HandleAnswer("remote-answer"))
	assert.Equal(t, LinkIdle, link.State())
	assert.Nil(t, fc.remoteDesc)
}

func TestDuplicateOfferIsDropped(t *testing.T) {
	fc := &fakeConn{}
	rec := &signalRecorder{}
	link := newPeerLink("a", fc, rec.send)

	require.NoError(t, link.HandleOffer("offer-1"))
	require.NoError(t, link.HandleOffer("offer-2"))

	assert.Len(t, rec.all(), 1)
	assert.Equal(t, "offer-1", fc.remoteDesc.SDP)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	fc := &fakeConn{}
	link := newPeerLink("a", fc, (&signalRecorder{}).send)

	link.AddCandidate(webrtc.ICECandidateInit{Candidate: "early-1"})
	link.AddCandidate(webrtc.ICECandidateInit{Candidate: "early-2"})
	assert.Empty(t, fc.candidates, "nothing reaches the connection before the remote description")

	require.NoError(t, link.HandleOffer("remote-offer"))

	require.Len(t, fc.candidates, 2)
	assert.Equal(t, "early-1", fc.candidates[0].Candidate)
	assert.Equal(t, "early-2", fc.candidates[1].Candidate)
}

func TestRejectedCandidateDoesNotAbortLink(t *testing.T) {
	fc := &fakeConn{failCandidates: true}
	link := newPeerLink("a", fc, (&signalRecorder{}).send)

	require.NoError(t, link.HandleOffer("remote-offer"))
	link.AddCandidate(webrtc.ICECandidateInit{Candidate: "bad"})

	assert.Equal(t, LinkStable, link.State())
	assert.False(t, fc.closed)
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	fc := &fakeConn{}
	rec := &signalRecorder{}
	link := newPeerLink("b", fc, rec.send)

	link.Close()
	link.Close()
	assert.Equal(t, LinkClosed, link.State())
	assert.True(t, fc.closed)

	// Every operation after close is a no-op.
	require.NoError(t, link.SendOffer())
	require.NoError(t, link.HandleOffer("late-offer"))
	require.NoError(t, link.HandleAnswer("late-answer"))
	link.AddCandidate(webrtc.ICECandidateInit{Candidate: "late"})

	assert.Empty(t, rec.all())
	assert.Nil(t, fc.remoteDesc)
}
