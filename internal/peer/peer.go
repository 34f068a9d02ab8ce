// Package peer drives one side of a video session: it acquires local media,
// owns the peer connection and walks it through the offer/answer/candidate
// handshake over a Signaler until the call connects or fails.
package peer

import (
	"context"
	"errors"

	"randomchat/backend/internal/models"
)

var (
	ErrPermissionDenied  = errors.New("media access: permission denied")
	ErrDeviceNotFound    = errors.New("media access: no capture device")
	ErrConnectionFailure = errors.New("peer connection failed")
	ErrMediaEnded        = errors.New("local media track ended")
	ErrSessionEnded      = errors.New("session ended")
	ErrClosed            = errors.New("connection closed")
	ErrAlreadyStarted    = errors.New("manager already started")
)

// IsMediaAccessError reports whether err is fatal to acquiring media.
func IsMediaAccessError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound)
}

type State string

const (
	StateIdle              State = "idle"
	StateAcquiringMedia    State = "acquiring-media"
	StateConnectionCreated State = "connection-created"
	StateOffering          State = "offering"
	StateAnswering         State = "answering"
	StateICENegotiating    State = "ice-negotiating"
	StateConnected         State = "connected"
	StateClosed            State = "closed"
)

// Track is a stoppable media track.
type Track interface {
	ID() string
	Kind() string
	Stop()
}

// MediaStream is a set of captured tracks. Ended fires when capture stops
// on its own (device unplugged, permission revoked).
type MediaStream interface {
	Tracks() []Track
	Ended() <-chan struct{}
}

type Constraints struct {
	Audio bool
	Video bool
}

// MediaDevice captures local media.
type MediaDevice interface {
	Acquire(ctx context.Context, c Constraints) (MediaStream, error)
}

// TransportState is the connection state reported by a Transport.
type TransportState string

const (
	TransportChecking     TransportState = "checking"
	TransportConnected    TransportState = "connected"
	TransportFailed       TransportState = "failed"
	TransportDisconnected TransportState = "disconnected"
	TransportClosed       TransportState = "closed"
)

func (s TransportState) terminal() bool {
	return s == TransportFailed || s == TransportDisconnected || s == TransportClosed
}

// Transport is a peer connection.
type Transport interface {
	AddStream(stream MediaStream) error
	// CreateOffer creates an offer, sets it as local description and
	// returns its SDP. CreateAnswer does the same for an answer.
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteDescription(desc models.SessionDescription) error
	AddICECandidate(c models.Candidate) error

	OnICECandidate(fn func(models.Candidate))
	OnStateChange(fn func(TransportState))
	OnTrack(fn func(Track))
	Close() error
}

// TransportFactory opens a fresh Transport.
type TransportFactory func() (Transport, error)

// Signaler is the relay as seen by one authenticated participant.
type Signaler interface {
	PublishOffer(ctx context.Context, sessionID, sdp string) error
	PublishAnswer(ctx context.Context, sessionID, sdp string) error
	AppendCandidate(ctx context.Context, sessionID string, c models.Candidate) error
	Observe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error)
	// Leave clears the participant's session and availability entry.
	Leave(ctx context.Context, sessionID string) error
}
