package peer

import (
	"context"
	"errors"
	"sync"

	"randomchat/backend/internal/models"
)

type fakeTrack struct {
	id, kind string

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return t.kind }
func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	tracks []Track
	ended  chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		tracks: []Track{&fakeTrack{id: "mic", kind: "audio"}, &fakeTrack{id: "cam", kind: "video"}},
		ended:  make(chan struct{}),
	}
}

func (s *fakeStream) Tracks() []Track        { return s.tracks }
func (s *fakeStream) Ended() <-chan struct{} { return s.ended }

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Acquire(context.Context, Constraints) (MediaStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakeTransport struct {
	mu         sync.Mutex
	name       string
	streams    int
	remote     []models.SessionDescription
	candidates []models.Candidate
	closed     bool

	onCandidate func(models.Candidate)
	onState     func(TransportState)
	onTrack     func(Track)
}

func (t *fakeTransport) AddStream(MediaStream) error {
	t.mu.Lock()
	t.streams++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) CreateOffer() (string, error)  { return t.name + "-offer", nil }
func (t *fakeTransport) CreateAnswer() (string, error) { return t.name + "-answer", nil }

func (t *fakeTransport) SetRemoteDescription(desc models.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = append(t.remote, desc)
	return nil
}

func (t *fakeTransport) AddICECandidate(c models.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) OnICECandidate(fn func(models.Candidate)) { t.onCandidate = fn }
func (t *fakeTransport) OnStateChange(fn func(TransportState))    { t.onState = fn }
func (t *fakeTransport) OnTrack(fn func(Track))                   { t.onTrack = fn }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(TransportClosed)
	}
	return nil
}

func (t *fakeTransport) remoteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remote)
}

func (t *fakeTransport) appliedSeqs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for _, c := range t.candidates {
		out = append(out, c.Seq)
	}
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func factoryFor(t *fakeTransport) TransportFactory {
	return func() (Transport, error) { return t, nil }
}

// fakeSignaler hands out one stream per Observe call; the test feeds the
// latest one through push.
type fakeSignaler struct {
	mu         sync.Mutex
	offers     []string
	answers    []string
	candidates []models.Candidate
	streams    []chan models.SessionEvent
	leaves     int
	observeErr error
}

func (s *fakeSignaler) PublishOffer(_ context.Context, _ string, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, sdp)
	return nil
}

func (s *fakeSignaler) PublishAnswer(_ context.Context, _ string, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, sdp)
	return nil
}

func (s *fakeSignaler) AppendCandidate(_ context.Context, _ string, c models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *fakeSignaler) Observe(context.Context, string) (<-chan models.SessionEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observeErr != nil {
		return nil, nil, s.observeErr
	}
	ch := make(chan models.SessionEvent, 16)
	s.streams = append(s.streams, ch)
	return ch, func() {}, nil
}

func (s *fakeSignaler) Leave(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	return nil
}

func (s *fakeSignaler) push(ev models.SessionEvent) {
	s.mu.Lock()
	ch := s.streams[len(s.streams)-1]
	s.mu.Unlock()
	ch <- ev
}

// closeStream closes the latest stream and makes further Observe calls
// fail with err when it is not nil.
func (s *fakeSignaler) closeStream(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeErr = err
	close(s.streams[len(s.streams)-1])
}

func (s *fakeSignaler) observed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *fakeSignaler) snapshot() (offers, answers []string, candidates []models.Candidate, leaves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.offers...), append([]string{}, s.answers...), append([]models.Candidate{}, s.candidates...), s.leaves
}

var errTest = errors.New("test")
