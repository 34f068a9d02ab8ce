package peer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrame = 20 * time.Millisecond

// LocalTrack is a pion sample track that can be stopped.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticSample
	once  sync.Once
	stop  chan struct{}
}

func newLocalTrack(codec, kind, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: codec}, kind, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{track: track, stop: make(chan struct{})}, nil
}

func (t *LocalTrack) ID() string   { return t.track.ID() }
func (t *LocalTrack) Kind() string { return t.track.Kind().String() }
func (t *LocalTrack) Stop()        { t.once.Do(func() { close(t.stop) }) }

// WriteSample pushes one media sample.
func (t *LocalTrack) WriteSample(s media.Sample) error {
	return t.track.WriteSample(s)
}

func (t *LocalTrack) stopped() <-chan struct{} { return t.stop }

// SyntheticDevice stands in for a camera and microphone on headless
// participants: an Opus track carrying silence and a VP8 track with no
// frames. Deny makes Acquire fail the way a refused permission prompt does.
type SyntheticDevice struct {
	Deny    bool
	Missing bool
}

type syntheticStream struct {
	tracks []Track
	ended  chan struct{}
}

func (s *syntheticStream) Tracks() []Track        { return s.tracks }
func (s *syntheticStream) Ended() <-chan struct{} { return s.ended }

func (d SyntheticDevice) Acquire(ctx context.Context, c Constraints) (MediaStream, error) {
	if d.Deny {
		return nil, ErrPermissionDenied
	}
	if d.Missing || (!c.Audio && !c.Video) {
		return nil, ErrDeviceNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "synthetic-" + uuid.NewString()
	stream := &syntheticStream{ended: make(chan struct{})}
	if c.Audio {
		audio, err := newLocalTrack(webrtc.MimeTypeOpus, "audio", streamID)
		if err != nil {
			return nil, err
		}
		stream.tracks = append(stream.tracks, audio)
		go pumpSilence(audio)
	}
	if c.Video {
		video, err := newLocalTrack(webrtc.MimeTypeVP8, "video", streamID)
		if err != nil {
			return nil, err
		}
		stream.tracks = append(stream.tracks, video)
	}
	return stream, nil
}

func pumpSilence(t *LocalTrack) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				return
			}
		case <-t.stopped():
			return
		}
	}
}
