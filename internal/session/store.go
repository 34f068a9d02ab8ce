// Package session holds the live sessions between two matched users. It is
// both the signaling relay for video sessions and the chat relay for text
// sessions. Nothing here is persisted: a session exists from the moment the
// matcher binds two users until either side ends it.
package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 64

// ID derives the session id from the two participant ids. The result does
// not depend on argument order.
func ID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

type subscriber struct {
	userID string
	ch     chan models.SessionEvent
	done   chan struct{}
}

// state is the mode-specific payload of one session. Guarded by Store.mu.
type state struct {
	session models.Session

	// video
	offer      *models.SessionDescription
	answer     *models.SessionDescription
	candidates []models.Candidate
	seq        int

	// text
	messages  []models.Message
	typing    map[string]bool
	typingGen map[string]int
	timers    map[string]*time.Timer

	subs    map[int]*subscriber
	nextSub int
}

// Store owns every live session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*state
	byUser   map[string]string

	quietPeriod time.Duration
	bufferSize  int
	now         func() time.Time

	hooksMu sync.RWMutex
	onEnd   []EndHook
}

// EndHook observes session teardown. by is the participant that left, or
// empty when the session was ended without one (End, shutdown).
type EndHook func(sess models.Session, by string)

// NewStore creates an empty store. quietPeriod is how long a typing flag
// stays up without further keystrokes.
func NewStore(quietPeriod time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*state),
		byUser:      make(map[string]string),
		quietPeriod: quietPeriod,
		bufferSize:  defaultSubscriberBuffer,
		now:         time.Now,
	}
}

// OnEnd registers fn to run after a session has been removed. Hooks run
// outside the store lock.
func (s *Store) OnEnd(fn EndHook) {
	s.hooksMu.Lock()
	s.onEnd = append(s.onEnd, fn)
	s.hooksMu.Unlock()
}

// Create binds initiator and partner into a new session.
func (s *Store) Create(mode models.Mode, initiator, partner string) (models.Session, error) {
	if initiator == "" || partner == "" || initiator == partner {
		return models.Session{}, ErrSelfPairing
	}
	if !mode.Valid() {
		return models.Session{}, ErrWrongMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.byUser[initiator]; busy {
		return models.Session{}, ErrParticipantBusy
	}
	if _, busy := s.byUser[partner]; busy {
		return models.Session{}, ErrParticipantBusy
	}

	sess := models.Session{
		ID:           ID(initiator, partner),
		ArchiveID:    uuid.NewString(),
		Mode:         mode,
		Participants: [2]string{initiator, partner},
		CreatedAt:    s.now(),
	}
	s.sessions[sess.ID] = &state{
		session:   sess,
		typing:    map[string]bool{initiator: false, partner: false},
		typingGen: make(map[string]int),
		timers:    make(map[string]*time.Timer),
		subs:      make(map[int]*subscriber),
	}
	s.byUser[initiator] = sess.ID
	s.byUser[partner] = sess.ID
	return sess, nil
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return st.session, nil
}

// SessionFor resolves the per-user pointer of userID.
func (s *Store) SessionFor(userID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return models.Session{}, false
	}
	return s.sessions[id].session, true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// End removes the session and both participants' pointers to it. Observers
// get a final "ended" event and their streams are closed. Ending an unknown
// or already ended session is a no-op and returns false.
func (s *Store) End(id string) (models.Session, bool) {
	return s.end(id, "")
}

// Leave ends the session userID is bound to, if any.
func (s *Store) Leave(userID string) (models.Session, bool) {
	s.mu.Lock()
	id, ok := s.byUser[userID]
	s.mu.Unlock()
	if !ok {
		return models.Session{}, false
	}
	return s.end(id, userID)
}

func (s *Store) end(id, by string) (models.Session, bool) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return models.Session{}, false
	}
	delete(s.sessions, id)
	for _, p := range st.session.Participants {
		if s.byUser[p] == id {
			delete(s.byUser, p)
		}
	}
	for user, t := range st.timers {
		t.Stop()
		delete(st.timers, user)
	}
	ended := s.event(st, models.SessionEnded)
	for subID, sub := range st.subs {
		select {
		case sub.ch <- ended:
		default:
		}
		st.drop(subID)
	}
	sess := st.session
	s.mu.Unlock()

	s.hooksMu.RLock()
	hooks := append([]EndHook{}, s.onEnd...)
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(sess, by)
	}
	return sess, true
}

// Observe subscribes userID to the changes of session id. The current state
// is replayed first. The stream is closed when the session ends, when the
// returned cancel func is called, when ctx is done, or when the subscriber
// falls too far behind; in the last case the caller may simply subscribe
// again.
func (s *Store) Observe(ctx context.Context, id, userID string) (<-chan models.SessionEvent, func(), error) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if !st.session.Has(userID) {
		s.mu.Unlock()
		return nil, nil, ErrNotParticipant
	}

	replay := s.replay(st)
	sub := &subscriber{
		userID: userID,
		ch:     make(chan models.SessionEvent, len(replay)+s.bufferSize),
		done:   make(chan struct{}),
	}
	for _, ev := range replay {
		sub.ch <- ev
	}
	subID := st.nextSub
	st.nextSub++
	st.subs[subID] = sub
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := st.subs[subID]; ok {
				st.drop(subID)
			}
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

func (s *Store) replay(st *state) []models.SessionEvent {
	var out []models.SessionEvent
	switch st.session.Mode {
	case models.ModeVideo:
		if st.offer != nil {
			ev := s.event(st, models.SessionOffer)
			ev.Description = st.offer
			out = append(out, ev)
		}
		if st.answer != nil {
			ev := s.event(st, models.SessionAnswer)
			ev.Description = st.answer
			out = append(out, ev)
		}
		for i := range st.candidates {
			ev := s.event(st, models.SessionCandidate)
			c := st.candidates[i]
			ev.Candidate = &c
			out = append(out, ev)
		}
	case models.ModeText:
		ev := s.event(st, models.SessionMessages)
		ev.Messages = st.snapshotMessages()
		out = append(out, ev)
		ev = s.event(st, models.SessionTyping)
		ev.Typing = st.snapshotTyping()
		out = append(out, ev)
	}
	return out
}

func (s *Store) event(st *state, typ models.SessionEventType) models.SessionEvent {
	return models.SessionEvent{Type: typ, SessionID: st.session.ID, At: s.now()}
}

// lookup returns the state of id if userID may act on it. Callers hold s.mu.
func (s *Store) lookup(id, userID string, mode models.Mode) (*state, error) {
	st, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !st.session.Has(userID) {
		return nil, ErrNotParticipant
	}
	if st.session.Mode != mode {
		return nil, ErrWrongMode
	}
	return st, nil
}

// broadcast delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full is dropped.
func (st *state) broadcast(ev models.SessionEvent) {
	for subID, sub := range st.subs {
		select {
		case sub.ch <- ev:
		default:
			logger.Warnf("session %s: subscriber %s is too slow, closing its stream", st.session.ID, sub.userID)
			st.drop(subID)
		}
	}
}

func (st *state) drop(subID int) {
	sub := st.subs[subID]
	delete(st.subs, subID)
	close(sub.ch)
	close(sub.done)
}
