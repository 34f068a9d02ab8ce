package chathub

import (
	"context"

	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"
	"randomchat/backend/internal/storage"
)

// FindStranger starts a search for userID. The outcome arrives as an event.
func (m *ManagerService) FindStranger(ctx context.Context, userID string, mode models.Mode) error {
	return m.Matcher.Submit(ctx, models.SearchRequest{UserID: userID, Mode: mode})
}

// CancelSearch withdraws a pending search. False means there was nothing to
// withdraw; a matched user ends the session instead.
func (m *ManagerService) CancelSearch(userID string) bool {
	return m.Matcher.Cancel(userID)
}

func (m *ManagerService) CurrentSession(userID string) (models.Session, bool) {
	return m.Sessions.SessionFor(userID)
}

// EndSession ends the session of userID. The partner is notified.
func (m *ManagerService) EndSession(userID string) (models.Session, error) {
	sess, ok := m.Sessions.Leave(userID)
	if !ok {
		return models.Session{}, ErrNoSession
	}
	return sess, nil
}

// EndSessionByID ends sessionID on behalf of one of its participants.
func (m *ManagerService) EndSessionByID(sessionID, userID string) error {
	sess, err := m.Sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if !sess.Has(userID) {
		return session.ErrNotParticipant
	}
	if cur, ok := m.Sessions.SessionFor(userID); !ok || cur.ID != sessionID {
		return session.ErrNotFound
	}
	_, err = m.EndSession(userID)
	return err
}

func (m *ManagerService) PublishOffer(sessionID, userID, sdp string) error {
	return m.Sessions.PublishOffer(sessionID, userID, sdp)
}

func (m *ManagerService) PublishAnswer(sessionID, userID, sdp string) error {
	return m.Sessions.PublishAnswer(sessionID, userID, sdp)
}

func (m *ManagerService) AppendCandidate(sessionID, userID string, c models.Candidate) (models.Candidate, error) {
	return m.Sessions.AppendCandidate(sessionID, userID, c)
}

func (m *ManagerService) Signaling(sessionID, userID string, after int) (session.Signal, error) {
	return m.Sessions.Signaling(sessionID, userID, after)
}

func (m *ManagerService) Observe(ctx context.Context, sessionID, userID string) (<-chan models.SessionEvent, func(), error) {
	return m.Sessions.Observe(ctx, sessionID, userID)
}

// SendMessage appends to the chat relay, pushes the message to the partner's
// client and archives it.
func (m *ManagerService) SendMessage(sessionID, userID, text string) (models.Message, error) {
	msg, err := m.Sessions.Send(sessionID, userID, text)
	if err != nil {
		return models.Message{}, err
	}
	if sess, err := m.Sessions.Get(sessionID); err == nil {
		m.Notify(models.Event{
			Type:        models.EventMessage,
			RecipientID: sess.Partner(userID),
			SessionID:   sessionID,
			PartnerID:   userID,
			Message:     &msg,
		})
		m.archive("save message "+msg.ID, func(st storage.Storage) error {
			return st.SaveMessage(sess.ArchiveID, sessionID, msg)
		})
	}
	return msg, nil
}

func (m *ManagerService) Messages(sessionID, userID string) ([]models.Message, error) {
	return m.Sessions.Messages(sessionID, userID)
}

// SetTyping updates the typing flag and tells the partner's client.
func (m *ManagerService) SetTyping(sessionID, userID string, typing bool) error {
	if err := m.Sessions.SetTyping(sessionID, userID, typing); err != nil {
		return err
	}
	if sess, err := m.Sessions.Get(sessionID); err == nil {
		m.Notify(models.Event{
			Type:        models.EventTyping,
			RecipientID: sess.Partner(userID),
			SessionID:   sessionID,
			PartnerID:   userID,
			Typing:      &typing,
		})
	}
	return nil
}

// History returns the archived chat of a session the user took part in.
// A live session only sees its own messages, not those of earlier pairings
// of the same two users; otherwise the latest archived pairing is used.
func (m *ManagerService) History(sessionID, userID string) ([]models.ChatHistory, error) {
	if m.Storage == nil {
		return nil, nil
	}
	if sess, err := m.Sessions.Get(sessionID); err == nil {
		if !sess.Has(userID) {
			return nil, session.ErrNotParticipant
		}
		return m.Storage.GetChatHistory(sess.ArchiveID)
	}
	rec, err := m.Storage.GetSessionRecord(sessionID)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, p := range rec.Participants {
		if p == userID {
			allowed = true
		}
	}
	if !allowed {
		return nil, session.ErrNotParticipant
	}
	return m.Storage.GetChatHistory(rec.ArchiveID)
}
