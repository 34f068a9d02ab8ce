package chathub

import (
	"context"
	"sync"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/presence"
	"randomchat/backend/internal/session"
	"randomchat/backend/internal/storage"

	"github.com/lib/pq"
)

const publishBuffer = 256

// ManagerService is the hub: it keeps the registry of connected clients,
// delivers per-user events to them and exposes the coordinator API the
// transports call into. Matching is delegated to the MatcherService it owns.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client

	RegisterCh   chan Registration
	UnregisterCh chan Client

	Matcher  *MatcherService
	Sessions *session.Store
	Presence *presence.Registry
	Storage  storage.Storage

	publishCh chan models.Event
	archiveQ  *archiveQueue
	stopped   chan struct{}
}

// NewManagerService wires the hub, its matcher and the session store. st
// may be nil, then nothing is archived or published.
func NewManagerService(sessions *session.Store, reg *presence.Registry, st storage.Storage, searchTimeout, sweep time.Duration) *ManagerService {
	m := &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Registration),
		UnregisterCh: make(chan Client),
		Sessions:     sessions,
		Presence:     reg,
		Storage:      st,
		publishCh:    make(chan models.Event, publishBuffer),
		archiveQ:     newArchiveQueue(),
		stopped:      make(chan struct{}),
	}
	m.Matcher = NewMatcherService(sessions, m, st, searchTimeout, sweep)
	sessions.OnEnd(m.onSessionEnd)
	return m
}

// Run обробляє реєстрацію клієнтів і запускає Matcher. Returns when ctx is
// done.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.stopped)
	go m.Matcher.Run(ctx)
	if m.Storage != nil {
		go m.runPublisher(ctx)
		go m.runArchiver(ctx)
	}

	for {
		select {
		case r := <-m.RegisterCh:
			m.register(ctx, r)
		case c := <-m.UnregisterCh:
			m.unregister(ctx, c)
		case <-ctx.Done():
			m.mu.Lock()
			clients := m.Clients
			m.Clients = make(map[string]Client)
			m.mu.Unlock()
			for _, c := range clients {
				c.Close()
			}
			logger.Infof("hub stopped")
			return
		}
	}
}

// Registration is a client handed to the Run loop. Done is closed once the
// client receives events.
type Registration struct {
	Client Client
	Done   chan struct{}
}

// Register hands c to the Run loop and returns once c is registered, so no
// event sent afterwards is lost. It reports false when the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	r := Registration{Client: c, Done: make(chan struct{})}
	select {
	case m.RegisterCh <- r:
	case <-m.stopped:
		return false
	}
	select {
	case <-r.Done:
		return true
	case <-m.stopped:
		return false
	}
}

// Unregister hands c to the Run loop for cleanup.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.stopped:
	}
}

func (m *ManagerService) register(ctx context.Context, r Registration) {
	c := r.Client
	userID := c.GetUserID()
	m.mu.Lock()
	old := m.Clients[userID]
	m.Clients[userID] = c
	m.mu.Unlock()
	defer close(r.Done)

	if old != nil && old != c {
		// a newer connection of the same user wins
		old.Close()
	}
	if m.Presence != nil {
		if err := m.Presence.Connect(ctx, userID); err != nil {
			logger.Warnf("presence connect %s: %v", userID, err)
		}
	}
	logger.Debugf("client registered: %s", userID)
}

// unregister is the server-side "on disconnect" cleanup: the user goes
// offline, its search is withdrawn and its session is ended.
func (m *ManagerService) unregister(ctx context.Context, c Client) {
	userID := c.GetUserID()
	m.mu.Lock()
	current, ok := m.Clients[userID]
	if !ok || current != c {
		m.mu.Unlock()
		return
	}
	delete(m.Clients, userID)
	m.mu.Unlock()
	c.Close()

	m.Disconnect(ctx, userID)
	logger.Debugf("client unregistered: %s", userID)
}

// Disconnect runs the cleanup of a user whose connection dropped.
func (m *ManagerService) Disconnect(ctx context.Context, userID string) {
	if m.Presence != nil {
		if err := m.Presence.Disconnect(ctx, userID); err != nil {
			logger.Warnf("presence disconnect %s: %v", userID, err)
		}
	}
	m.Matcher.Cancel(userID)
	m.Sessions.Leave(userID)
}

// Client returns the registered client of userID.
func (m *ManagerService) Client(userID string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.Clients[userID]
	return c, ok
}

// Notify delivers ev to the recipient's client without blocking and queues
// lifecycle events for the redis bus.
func (m *ManagerService) Notify(ev models.Event) {
	m.mu.RLock()
	if c, ok := m.Clients[ev.RecipientID]; ok {
		select {
		case c.GetSendChannel() <- ev:
		default:
			logger.Warnf("client %s is not draining events, dropped %s", ev.RecipientID, ev.Type)
		}
	}
	m.mu.RUnlock()

	switch ev.Type {
	case models.EventTyping, models.EventMessage, models.EventConnected:
	default:
		m.publish(ev)
	}
}

// SessionStarted archives a freshly matched session.
func (m *ManagerService) SessionStarted(sess models.Session) {
	rec := &models.SessionRecord{
		ArchiveID:    sess.ArchiveID,
		SessionID:    sess.ID,
		Mode:         sess.Mode,
		Participants: pq.StringArray{sess.Participants[0], sess.Participants[1]},
		IsActive:     true,
		StartedAt:    sess.CreatedAt,
	}
	m.archive("save session "+sess.ID, func(st storage.Storage) error {
		return st.SaveSession(rec)
	})
}

func (m *ManagerService) onSessionEnd(sess models.Session, by string) {
	m.Matcher.Release(sess)

	for _, p := range sess.Participants {
		if p == by {
			continue
		}
		m.Notify(models.Event{
			Type:        models.EventSessionEnded,
			RecipientID: p,
			SessionID:   sess.ID,
			Mode:        sess.Mode,
			PartnerID:   sess.Partner(p),
			ByPartner:   by != "",
		})
	}

	m.archive("close session "+sess.ID, func(st storage.Storage) error {
		return st.CloseSession(sess.ArchiveID)
	})
	logger.Infof("session %s ended (by %q)", sess.ID, by)
}

// RecoverStaleSessions closes archived sessions left active by a previous
// run. Live sessions never survive a restart.
func (m *ManagerService) RecoverStaleSessions() {
	if m.Storage == nil {
		return
	}
	n, err := m.Storage.CloseStaleSessions()
	if err != nil {
		logger.Errorf("failed to close stale sessions: %v", err)
		return
	}
	logger.Infof("recovery complete, closed %d stale sessions", n)
}
