package config

import "time"

const (
	// Search
	DefaultSearchTimeout = 15 * time.Second
	DefaultSweepInterval = 100 * time.Millisecond

	// Chat
	DefaultTypingQuietPeriod = 1500 * time.Millisecond
	MaxMessageLength         = 2000

	// Presence
	DefaultPresenceTTL = 60 * time.Second
)

// DefaultICEServers are the public STUN servers used when ICE_SERVERS is unset.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}
