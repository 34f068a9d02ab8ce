package models

import "time"

// EventType names a per-user push event.
type EventType string

const (
	// EventConnected opens every /ws stream once the hub delivers to it.
	EventConnected      EventType = "connected"
	EventSearchStarted  EventType = "search_started"
	EventMatchFound     EventType = "match_found"
	EventNoMatch        EventType = "no_match"
	EventSearchCanceled EventType = "search_canceled"
	EventSessionEnded   EventType = "session_ended"
	EventMessage        EventType = "message"
	EventTyping         EventType = "typing"
	EventError          EventType = "error"
)

// Event is pushed to a single user over whatever client they are connected
// with (websocket, telegram).
type Event struct {
	Type        EventType `json:"type"`
	RecipientID string    `json:"recipient_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Mode        Mode      `json:"mode,omitempty"`
	PartnerID   string    `json:"partner_id,omitempty"`
	Initiator   bool      `json:"initiator,omitempty"`
	// ByPartner is set on session_ended when the other side left.
	ByPartner bool     `json:"by_partner,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Typing    *bool    `json:"typing,omitempty"`
	Content   string   `json:"content,omitempty"`
}

// SessionEventType names a change observed on a session.
type SessionEventType string

const (
	SessionOffer     SessionEventType = "offer"
	SessionAnswer    SessionEventType = "answer"
	SessionCandidate SessionEventType = "candidate"
	SessionMessages  SessionEventType = "messages"
	SessionTyping    SessionEventType = "typing"
	SessionEnded     SessionEventType = "ended"
)

// SessionEvent is one item of a session observation stream.
type SessionEvent struct {
	Type        SessionEventType    `json:"type"`
	SessionID   string              `json:"session_id"`
	Description *SessionDescription `json:"description,omitempty"`
	Candidate   *Candidate          `json:"candidate,omitempty"`
	Messages    []Message           `json:"messages,omitempty"`
	Typing      map[string]bool     `json:"typing,omitempty"`
	At          time.Time           `json:"at"`
}

// SearchRequest asks the matcher to find a partner for UserID.
type SearchRequest struct {
	UserID   string
	Mode     Mode
	ResultCh chan SearchResult // Channel для повернення результату
}

// SearchResult is the outcome of one SearchRequest.
type SearchResult struct {
	SessionID string `json:"session_id,omitempty"`
	PartnerID string `json:"partner_id,omitempty"`
	Initiator bool   `json:"initiator,omitempty"`
	Err       error  `json:"-"`
}
