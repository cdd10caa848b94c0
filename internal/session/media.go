package session

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// LocalMedia is the single local capture shared by every peer link in a
// session: one audio and one video track, attached read-only to each
// connection. The enabled flag is one global mutation observed by all links
// at once; there is no per-peer mute.
type LocalMedia struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	enabled atomic.Bool
}

// AcquireLocalMedia materializes the local tracks. Failure here is fatal to
// joining a room and must be surfaced to the user, so the error is returned
// instead of logged away.
func AcquireLocalMedia() (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "agorax",
	)
	if err != nil {
		return nil, fmt.Errorf("acquire audio track: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "agorax",
	)
	if err != nil {
		return nil, fmt.Errorf("acquire video track: %w", err)
	}

	m := &LocalMedia{audio: audio, video: video}
	m.enabled.Store(true)
	return m, nil
}

// Tracks returns the shared local tracks to attach to a new peer connection.
func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{m.audio, m.video}
}

// SetEnabled toggles capture globally. While disabled, samples handed to the
// tracks are discarded, which every attached peer link observes at once.
func (m *LocalMedia) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// Enabled reports whether capture is currently live.
func (m *LocalMedia) Enabled() bool {
	return m.enabled.Load()
}

// WriteAudioSample feeds one captured audio sample to every attached link.
func (m *LocalMedia) WriteAudioSample(sample media.Sample) error {
	if !m.enabled.Load() {
		return nil
	}
	return m.audio.WriteSample(sample)
}

// WriteVideoSample feeds one captured video frame to every attached link.
func (m *LocalMedia) WriteVideoSample(sample media.Sample) error {
	if !m.enabled.Load() {
		return nil
	}
	return m.video.WriteSample(sample)
}
