package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is one chat line. Immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory represents a saved chat message in the PostgreSQL database.
// The embedded gorm.Model provides ID, CreatedAt, UpdatedAt, and DeletedAt fields.
type ChatHistory struct {
	gorm.Model

	// MessageID is the relay-assigned id of the message.
	MessageID string `gorm:"type:text;uniqueIndex"`
	// ArchiveID is the SessionRecord the message belongs to.
	ArchiveID string `gorm:"type:text;not null;index"`
	// SessionID is the session the message was sent in.
	SessionID string `gorm:"type:text;not null;index:idx_session_msg"`
	// SenderID is the anonymous ID of the user who sent the message.
	SenderID string `gorm:"type:text;not null;index:idx_session_msg"`
	Text     string `gorm:"type:text;not null"`
	// SentAt is the relay timestamp used for ordering.
	SentAt time.Time `gorm:"index"`
}
