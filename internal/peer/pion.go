package peer

import (
	"errors"
	"sync"

	"randomchat/backend/internal/models"

	"github.com/pion/webrtc/v3"
)

// PionTransport is a Transport over a pion PeerConnection.
type PionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	onState func(TransportState)
}

// NewPionFactory returns a TransportFactory using the given ICE server URLs.
func NewPionFactory(iceServers []string) TransportFactory {
	return func() (Transport, error) {
		return NewPionTransport(iceServers)
	}
}

func NewPionTransport(iceServers []string) (*PionTransport, error) {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	t := &PionTransport{pc: pc}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnected:
			t.emit(TransportConnected)
		case webrtc.PeerConnectionStateFailed:
			t.emit(TransportFailed)
		case webrtc.PeerConnectionStateDisconnected:
			t.emit(TransportDisconnected)
		case webrtc.PeerConnectionStateClosed:
			t.emit(TransportClosed)
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		switch s {
		case webrtc.ICEConnectionStateChecking:
			t.emit(TransportChecking)
		case webrtc.ICEConnectionStateFailed:
			t.emit(TransportFailed)
		}
	})
	return t, nil
}

func (t *PionTransport) emit(s TransportState) {
	t.mu.Lock()
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// AddStream adds every pion-backed local track of stream. Tracks from other
// devices are skipped.
func (t *PionTransport) AddStream(stream MediaStream) error {
	added := 0
	for _, tr := range stream.Tracks() {
		local, ok := tr.(*LocalTrack)
		if !ok {
			continue
		}
		sender, err := t.pc.AddTrack(local.track)
		if err != nil {
			return err
		}
		go drainRTCP(sender)
		added++
	}
	if added == 0 {
		return errors.New("stream has no tracks usable by pion")
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *PionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *PionTransport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (t *PionTransport) SetRemoteDescription(desc models.SessionDescription) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (t *PionTransport) AddICECandidate(c models.Candidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *PionTransport) OnICECandidate(fn func(models.Candidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete
		}
		init := c.ToJSON()
		fn(models.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (t *PionTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *PionTransport) OnTrack(fn func(Track)) {
	t.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rt := newRemoteTrack(remote)
		go rt.drain()
		fn(rt)
	})
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}

// remoteTrack wraps a received track. Stop ends the local read loop; the
// track itself goes away with the connection.
type remoteTrack struct {
	track *webrtc.TrackRemote
	stop  chan struct{}
	once  sync.Once
}

func newRemoteTrack(t *webrtc.TrackRemote) *remoteTrack {
	return &remoteTrack{track: t, stop: make(chan struct{})}
}

func (r *remoteTrack) ID() string   { return r.track.ID() }
func (r *remoteTrack) Kind() string { return r.track.Kind().String() }
func (r *remoteTrack) Stop()        { r.once.Do(func() { close(r.stop) }) }

func (r *remoteTrack) drain() {
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if _, _, err := r.track.ReadRTP(); err != nil {
			return
		}
	}
}
