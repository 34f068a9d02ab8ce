package models

import "time"

// Mode selects which chat feature a search or session belongs to.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeText  Mode = "text"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeVideo || m == ModeText
}

// AvailabilityEntry marks a user as seeking a partner.
// A user has at most one entry at a time.
type AvailabilityEntry struct {
	UserID     string    `json:"user_id"`
	Mode       Mode      `json:"mode"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Matched    bool      `json:"matched"`
	SessionID  string    `json:"session_id,omitempty"`
}
