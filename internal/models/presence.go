package models

import "time"

// PresenceRecord says whether a user is currently connected.
// There is one record per user; the last write wins.
type PresenceRecord struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
