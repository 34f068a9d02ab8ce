package models

import (
	"time"

	"github.com/lib/pq"
)

// Session is the bound record of one active pairing.
// Participants[0] is the initiator that committed the pairing. ID repeats
// when the same two users meet again; ArchiveID does not.
type Session struct {
	ID           string    `json:"session_id"`
	ArchiveID    string    `json:"archive_id"`
	Mode         Mode      `json:"mode"`
	Participants [2]string `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Initiator returns the participant that drives the offer.
func (s Session) Initiator() string { return s.Participants[0] }

// Has reports whether userID is one of the two participants.
func (s Session) Has(userID string) bool {
	return userID != "" && (s.Participants[0] == userID || s.Participants[1] == userID)
}

// Partner returns the other participant, or "" when userID is not part of s.
func (s Session) Partner(userID string) string {
	switch userID {
	case s.Participants[0]:
		return s.Participants[1]
	case s.Participants[1]:
		return s.Participants[0]
	}
	return ""
}

// SessionRecord is the archived trace of a session in PostgreSQL.
// The live session itself is never persisted. One row per pairing, so the
// same SessionID may appear in several rows.
type SessionRecord struct {
	ArchiveID    string         `gorm:"primaryKey;type:text" json:"archive_id"`
	SessionID    string         `gorm:"type:text;not null;index" json:"session_id"`
	Mode         Mode           `gorm:"type:text;not null" json:"mode"`
	Participants pq.StringArray `gorm:"type:text[]" json:"participants"`
	IsActive     bool           `gorm:"index" json:"is_active"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
}
