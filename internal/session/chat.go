package session

import (
	"sort"
	"strings"
	"time"

	"randomchat/backend/internal/config"
	"randomchat/backend/internal/models"

	"github.com/google/uuid"
)

// Send appends a message stamped with the relay clock.
func (s *Store) Send(id, senderID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if len([]rune(text)) > config.MaxMessageLength {
		return models.Message{}, ErrMessageTooLong
	}
	return s.Append(id, models.Message{SenderID: senderID, Text: text})
}

// Append adds msg to the log, keeping the log sorted by timestamp with
// insertion order on ties. A zero timestamp is replaced with the relay
// clock. Sending clears the sender's typing flag.
func (s *Store) Append(id string, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, msg.SenderID, models.ModeText)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	i := sort.Search(len(st.messages), func(i int) bool {
		return st.messages[i].Timestamp.After(msg.Timestamp)
	})
	st.messages = append(st.messages, models.Message{})
	copy(st.messages[i+1:], st.messages[i:])
	st.messages[i] = msg

	ev := s.event(st, models.SessionMessages)
	ev.Messages = st.snapshotMessages()
	st.broadcast(ev)

	s.setTypingLocked(st, msg.SenderID, false)
	return msg, nil
}

// Messages returns the full log in timestamp order.
func (s *Store) Messages(id, userID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, userID, models.ModeText)
	if err != nil {
		return nil, err
	}
	return st.snapshotMessages(), nil
}

// SetTyping sets the typing flag of userID. A true flag clears itself after
// the quiet period unless it is asserted again.
func (s *Store) SetTyping(id, userID string, typing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, userID, models.ModeText)
	if err != nil {
		return err
	}
	s.setTypingLocked(st, userID, typing)
	return nil
}

// Typing returns both participants' flags.
func (s *Store) Typing(id, userID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, userID, models.ModeText)
	if err != nil {
		return nil, err
	}
	return st.snapshotTyping(), nil
}

func (s *Store) setTypingLocked(st *state, userID string, typing bool) {
	if t, ok := st.timers[userID]; ok {
		t.Stop()
		delete(st.timers, userID)
	}
	st.typingGen[userID]++

	if typing {
		gen := st.typingGen[userID]
		st.timers[userID] = time.AfterFunc(s.quietPeriod, func() {
			s.expireTyping(st, userID, gen)
		})
	}

	if st.typing[userID] == typing {
		return
	}
	st.typing[userID] = typing
	ev := s.event(st, models.SessionTyping)
	ev.Typing = st.snapshotTyping()
	st.broadcast(ev)
}

// expireTyping runs on the quiet-period timer. A timer that lost a race
// with a newer SetTyping sees a stale generation and does nothing.
func (s *Store) expireTyping(st *state, userID string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[st.session.ID] != st || st.typingGen[userID] != gen {
		return
	}
	delete(st.timers, userID)
	s.setTypingLocked(st, userID, false)
}

func (st *state) snapshotMessages() []models.Message {
	out := make([]models.Message, len(st.messages))
	copy(out, st.messages)
	return out
}

func (st *state) snapshotTyping() map[string]bool {
	out := make(map[string]bool, len(st.typing))
	for k, v := range st.typing {
		out[k] = v
	}
	return out
}
