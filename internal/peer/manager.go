package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
)

const (
	leaveTimeout    = 5 * time.Second
	outboundBacklog = 64
)

// Options describe the session a Manager joins.
type Options struct {
	UserID    string
	SessionID string
	Initiator bool

	// OnStateChange runs under the manager lock; it must not call back into
	// the Manager.
	OnStateChange func(State)
	OnRemoteTrack func(Track)
}

// Manager owns the local media and the peer connection of one participant
// for the lifetime of one session. It is single use.
type Manager struct {
	device       MediaDevice
	newTransport TransportFactory
	signaler     Signaler
	opts         Options

	mu           sync.Mutex
	state        State
	stream       MediaStream
	transport    Transport
	remoteTracks []Track
	remoteSet    bool
	pending      []models.Candidate
	seen         map[int]bool
	unsubscribe  func()
	err          error

	outbound  chan models.Candidate
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewManager(device MediaDevice, factory TransportFactory, signaler Signaler, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		device:       device,
		newTransport: factory,
		signaler:     signaler,
		opts:         opts,
		state:        StateIdle,
		seen:         make(map[int]bool),
		outbound:     make(chan models.Candidate, outboundBacklog),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the manager has torn down.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Err is the reason of the teardown; nil for an explicit Close.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Start acquires media, opens the connection and begins the handshake. It
// returns once the initiator published its offer, or the responder is
// waiting for one. Any failure tears the attempt down before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.setStateLocked(StateAcquiringMedia)
	m.mu.Unlock()

	stream, err := m.device.Acquire(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		m.close(err)
		return err
	}
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		stopAll(stream.Tracks())
		return ErrClosed
	}
	m.stream = stream
	m.mu.Unlock()

	transport, err := m.newTransport()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionFailure, err)
		m.close(err)
		return err
	}
	transport.OnICECandidate(m.forwardCandidate)
	transport.OnStateChange(m.handleTransportState)
	transport.OnTrack(m.handleRemoteTrack)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		transport.Close()
		return ErrClosed
	}
	m.transport = transport
	m.mu.Unlock()

	if err := transport.AddStream(stream); err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionFailure, err)
		m.close(err)
		return err
	}
	m.mu.Lock()
	m.setStateLocked(StateConnectionCreated)
	m.mu.Unlock()

	go m.watchStream(stream)
	go m.sendCandidates()

	events, unsubscribe, err := m.signaler.Observe(m.ctx, m.opts.SessionID)
	if err != nil {
		m.close(err)
		return err
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	m.unsubscribe = unsubscribe
	var offer string
	if m.opts.Initiator {
		m.setStateLocked(StateOffering)
		offer, err = transport.CreateOffer()
	} else {
		m.setStateLocked(StateAnswering)
	}
	m.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: create offer: %v", ErrConnectionFailure, err)
		m.close(err)
		return err
	}
	if m.opts.Initiator {
		if err := m.signaler.PublishOffer(ctx, m.opts.SessionID, offer); err != nil {
			m.close(err)
			return err
		}
	}

	go m.run(events)
	logger.Debugf("peer %s: started in %s (initiator=%v)", m.opts.UserID, m.opts.SessionID, m.opts.Initiator)
	return nil
}

// Close is the explicit disconnect.
func (m *Manager) Close() {
	m.close(nil)
}

func (m *Manager) close(reason error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		from := m.state
		m.err = reason
		m.setStateLocked(StateClosed)
		unsubscribe := m.unsubscribe
		stream := m.stream
		transport := m.transport
		remote := m.remoteTracks
		m.mu.Unlock()

		m.cancel()
		close(m.done)

		if unsubscribe != nil {
			unsubscribe()
		}
		if stream != nil {
			stopAll(stream.Tracks())
		}
		stopAll(remote)
		if transport != nil {
			if err := transport.Close(); err != nil {
				logger.Debugf("peer %s: close transport: %v", m.opts.UserID, err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := m.signaler.Leave(ctx, m.opts.SessionID); err != nil {
			logger.Debugf("peer %s: leave %s: %v", m.opts.UserID, m.opts.SessionID, err)
		}

		if reason != nil {
			logger.Infof("peer %s: closed from %s: %v", m.opts.UserID, from, reason)
		} else {
			logger.Infof("peer %s: closed from %s", m.opts.UserID, from)
		}
	})
}

// run consumes the session stream until teardown. A stream that closes
// while the manager is still live is re-subscribed; the replay is
// deduplicated by the handlers.
func (m *Manager) run(events <-chan models.SessionEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if m.closed() {
					return
				}
				next, unsubscribe, err := m.signaler.Observe(m.ctx, m.opts.SessionID)
				if err != nil {
					m.close(fmt.Errorf("%w: %v", ErrSessionEnded, err))
					return
				}
				m.mu.Lock()
				m.unsubscribe = unsubscribe
				m.mu.Unlock()
				events = next
				logger.Debugf("peer %s: re-subscribed to %s", m.opts.UserID, m.opts.SessionID)
				continue
			}
			m.handleEvent(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleEvent(ev models.SessionEvent) {
	var (
		answer  string
		publish bool
		fail    error
	)

	m.mu.Lock()
	// stale: another session, or we are already gone
	if m.state == StateClosed || ev.SessionID != m.opts.SessionID {
		m.mu.Unlock()
		return
	}

	switch ev.Type {
	case models.SessionOffer:
		if m.opts.Initiator || m.remoteSet || ev.Description == nil {
			break
		}
		if err := m.transport.SetRemoteDescription(*ev.Description); err != nil {
			fail = fmt.Errorf("%w: apply offer: %v", ErrConnectionFailure, err)
			break
		}
		m.remoteSet = true
		m.flushLocked()
		sdp, err := m.transport.CreateAnswer()
		if err != nil {
			fail = fmt.Errorf("%w: create answer: %v", ErrConnectionFailure, err)
			break
		}
		m.setStateLocked(StateICENegotiating)
		answer, publish = sdp, true

	case models.SessionAnswer:
		if !m.opts.Initiator || m.remoteSet || ev.Description == nil {
			break
		}
		if err := m.transport.SetRemoteDescription(*ev.Description); err != nil {
			fail = fmt.Errorf("%w: apply answer: %v", ErrConnectionFailure, err)
			break
		}
		m.remoteSet = true
		m.flushLocked()
		m.setStateLocked(StateICENegotiating)

	case models.SessionCandidate:
		if ev.Candidate == nil {
			break
		}
		c := *ev.Candidate
		if c.From == m.opts.UserID || m.seen[c.Seq] {
			break
		}
		m.seen[c.Seq] = true
		if !m.remoteSet {
			m.pending = append(m.pending, c)
			break
		}
		m.applyLocked(c)

	case models.SessionEnded:
		fail = ErrSessionEnded
	}
	m.mu.Unlock()

	if fail != nil {
		m.close(fail)
		return
	}
	if publish {
		if err := m.signaler.PublishAnswer(m.ctx, m.opts.SessionID, answer); err != nil {
			m.close(fmt.Errorf("%w: publish answer: %v", ErrConnectionFailure, err))
		}
	}
}

// flushLocked applies the candidates that arrived before the remote
// description, in arrival order.
func (m *Manager) flushLocked() {
	for _, c := range m.pending {
		m.applyLocked(c)
	}
	m.pending = nil
}

func (m *Manager) applyLocked(c models.Candidate) {
	if err := m.transport.AddICECandidate(c); err != nil {
		logger.Warnf("peer %s: candidate %d rejected: %v", m.opts.UserID, c.Seq, err)
	}
}

func (m *Manager) forwardCandidate(c models.Candidate) {
	select {
	case m.outbound <- c:
	case <-m.done:
	}
}

func (m *Manager) sendCandidates() {
	for {
		select {
		case c := <-m.outbound:
			if err := m.signaler.AppendCandidate(m.ctx, m.opts.SessionID, c); err != nil {
				logger.Debugf("peer %s: send candidate: %v", m.opts.UserID, err)
			}
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleTransportState(s TransportState) {
	switch {
	case s == TransportConnected:
		m.mu.Lock()
		if m.state != StateClosed {
			m.setStateLocked(StateConnected)
		}
		m.mu.Unlock()
	case s.terminal():
		// transports report "closed" from inside Close; never block them
		go m.close(fmt.Errorf("%w: transport %s", ErrConnectionFailure, s))
	}
}

func (m *Manager) handleRemoteTrack(t Track) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		t.Stop()
		return
	}
	m.remoteTracks = append(m.remoteTracks, t)
	m.mu.Unlock()
	if m.opts.OnRemoteTrack != nil {
		m.opts.OnRemoteTrack(t)
	}
}

func (m *Manager) watchStream(stream MediaStream) {
	select {
	case <-stream.Ended():
		m.close(ErrMediaEnded)
	case <-m.done:
	}
}

func (m *Manager) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
}

func stopAll(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}
