package chathub

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"
	"randomchat/backend/internal/storage"
)

const mirrorBuffer = 256

type queued struct {
	entry    models.AvailabilityEntry
	resultCh chan models.SearchResult
	// archiveID of the session the entry was matched into
	archiveID string
}

type cancelReq struct {
	userID string
	reply  chan bool
}

type releaseReq struct {
	sess models.Session
}

type mirrorOp struct {
	userID string
	mode   models.Mode
	add    bool
}

// MatcherService відповідає за алгоритм пошуку співрозмовників.
//
// It is a single goroutine that owns the availability pool. Every pairing
// decision is taken inside Run, so a user can never be handed to two
// partners at once.
type MatcherService struct {
	// Queue - черга користувачів, які чекають на з'єднання.
	// Ключ: AnonID користувача. Owned by the Run goroutine.
	Queue map[string]*queued

	RequestCh  chan models.SearchRequest
	cancelCh   chan cancelReq
	releaseCh  chan releaseReq
	snapshotCh chan chan []models.AvailabilityEntry
	mirrorCh   chan mirrorOp
	done       chan struct{}

	Sessions *session.Store
	Notifier Notifier
	Storage  storage.Storage

	timeout time.Duration
	sweep   time.Duration
	rnd     *rand.Rand
	now     func() time.Time
}

// NewMatcherService створює новий Matcher. st may be nil, then the redis
// mirror of the queue is skipped.
func NewMatcherService(sessions *session.Store, n Notifier, st storage.Storage, timeout, sweep time.Duration) *MatcherService {
	return &MatcherService{
		Queue:      make(map[string]*queued),
		RequestCh:  make(chan models.SearchRequest),
		cancelCh:   make(chan cancelReq),
		releaseCh:  make(chan releaseReq, 64),
		snapshotCh: make(chan chan []models.AvailabilityEntry),
		mirrorCh:   make(chan mirrorOp, mirrorBuffer),
		done:       make(chan struct{}),
		Sessions:   sessions,
		Notifier:   n,
		Storage:    st,
		timeout:    timeout,
		sweep:      sweep,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// Run запускає основну Goroutine Matcher'а. It returns when ctx is done.
func (m *MatcherService) Run(ctx context.Context) {
	logger.Infof("matcher started (timeout %s)", m.timeout)
	defer close(m.done)

	if m.Storage != nil {
		if err := m.Storage.ClearSearchQueue(); err != nil {
			logger.Warnf("matcher: clear queue mirror: %v", err)
		}
		go m.runMirror(ctx)
	}

	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case req := <-m.RequestCh:
			m.handleRequest(req)
		case c := <-m.cancelCh:
			c.reply <- m.handleCancel(c.userID)
		case r := <-m.releaseCh:
			m.handleRelease(r)
		case reply := <-m.snapshotCh:
			reply <- m.snapshot()
		case <-ticker.C:
			m.expire()
		case <-ctx.Done():
			for user, q := range m.Queue {
				if !q.entry.Matched {
					deliver(q.resultCh, models.SearchResult{Err: ErrSearchCanceled})
				}
				delete(m.Queue, user)
			}
			logger.Infof("matcher stopped")
			return
		}
	}
}

// Submit hands req to the matcher without waiting for the outcome. The
// outcome is delivered on req.ResultCh (if set) and as events.
func (m *MatcherService) Submit(ctx context.Context, req models.SearchRequest) error {
	if !req.Mode.Valid() {
		return ErrInvalidMode
	}
	select {
	case m.RequestCh <- req:
		return nil
	case <-m.done:
		return ErrMatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Find starts a search and blocks until it is matched, times out or is
// canceled. Giving up through ctx withdraws the search.
func (m *MatcherService) Find(ctx context.Context, userID string, mode models.Mode) (models.SearchResult, error) {
	req := models.SearchRequest{UserID: userID, Mode: mode, ResultCh: make(chan models.SearchResult, 1)}
	if err := m.Submit(ctx, req); err != nil {
		return models.SearchResult{}, err
	}

	select {
	case res := <-req.ResultCh:
		return res, res.Err
	case <-m.done:
		return models.SearchResult{}, ErrMatcherStopped
	case <-ctx.Done():
		if m.Cancel(userID) {
			return models.SearchResult{}, ctx.Err()
		}
		// lost the race with a commit
		select {
		case res := <-req.ResultCh:
			return res, res.Err
		default:
			return models.SearchResult{}, ctx.Err()
		}
	}
}

// Cancel withdraws the search of userID. It reports false when there is no
// pending search, including when it has already been matched.
func (m *MatcherService) Cancel(userID string) bool {
	reply := make(chan bool, 1)
	select {
	case m.cancelCh <- cancelReq{userID: userID, reply: reply}:
	case <-m.done:
		return false
	}
	return <-reply
}

// Release drops the matched entries of a finished session. It never blocks,
// so it is safe to call from session end hooks.
func (m *MatcherService) Release(sess models.Session) {
	select {
	case m.releaseCh <- releaseReq{sess: sess}:
	default:
		go func() {
			select {
			case m.releaseCh <- releaseReq{sess: sess}:
			case <-m.done:
			}
		}()
	}
}

// Snapshot returns a copy of the pool ordered by enqueue time.
func (m *MatcherService) Snapshot() []models.AvailabilityEntry {
	reply := make(chan []models.AvailabilityEntry, 1)
	select {
	case m.snapshotCh <- reply:
	case <-m.done:
		return nil
	}
	return <-reply
}

func (m *MatcherService) handleRequest(req models.SearchRequest) {
	if old, ok := m.Queue[req.UserID]; ok {
		if !old.entry.Matched {
			deliver(old.resultCh, models.SearchResult{Err: ErrSearchCanceled})
		}
		delete(m.Queue, req.UserID)
	}
	// A new search replaces the current call or chat.
	if sess, ok := m.Sessions.Leave(req.UserID); ok {
		m.dropSession(sess)
		logger.Infof("matcher: %s left session %s to search again", req.UserID, sess.ID)
	}

	q := &queued{
		entry: models.AvailabilityEntry{
			UserID:     req.UserID,
			Mode:       req.Mode,
			EnqueuedAt: m.now(),
		},
		resultCh: req.ResultCh,
	}
	m.Queue[req.UserID] = q
	m.mirror(req.UserID, req.Mode, true)
	m.notify(models.Event{Type: models.EventSearchStarted, RecipientID: req.UserID, Mode: req.Mode})
	logger.Debugf("matcher: %s queued for %s", req.UserID, req.Mode)

	m.findMatch(q)
}

// findMatch намагається знайти співрозмовника для даного запиту.
func (m *MatcherService) findMatch(q *queued) {
	var eligible []*queued
	for id, other := range m.Queue {
		// Не шукати пару із самим собою
		if id == q.entry.UserID || other.entry.Matched || other.entry.Mode != q.entry.Mode {
			continue
		}
		eligible = append(eligible, other)
	}
	if len(eligible) == 0 {
		return
	}
	// sorted so the pick depends only on rnd
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].entry.UserID < eligible[j].entry.UserID })
	partner := eligible[m.rnd.Intn(len(eligible))]

	sess, err := m.Sessions.Create(q.entry.Mode, q.entry.UserID, partner.entry.UserID)
	if err != nil {
		logger.Errorf("matcher: create session %s/%s: %v", q.entry.UserID, partner.entry.UserID, err)
		return
	}

	for _, side := range []*queued{q, partner} {
		side.entry.Matched = true
		side.entry.SessionID = sess.ID
		side.archiveID = sess.ArchiveID
		m.mirror(side.entry.UserID, side.entry.Mode, false)
	}
	if m.Notifier != nil {
		m.Notifier.SessionStarted(sess)
	}
	for _, side := range []*queued{q, partner} {
		initiator := side == q
		other := sess.Partner(side.entry.UserID)
		deliver(side.resultCh, models.SearchResult{SessionID: sess.ID, PartnerID: other, Initiator: initiator})
		m.notify(models.Event{
			Type:        models.EventMatchFound,
			RecipientID: side.entry.UserID,
			SessionID:   sess.ID,
			Mode:        sess.Mode,
			PartnerID:   other,
			Initiator:   initiator,
		})
	}
	logger.Infof("match found: %s and %s in session %s", q.entry.UserID, partner.entry.UserID, sess.ID)
}

func (m *MatcherService) handleCancel(userID string) bool {
	q, ok := m.Queue[userID]
	if !ok || q.entry.Matched {
		return false
	}
	delete(m.Queue, userID)
	m.mirror(userID, q.entry.Mode, false)
	deliver(q.resultCh, models.SearchResult{Err: ErrSearchCanceled})
	m.notify(models.Event{Type: models.EventSearchCanceled, RecipientID: userID, Mode: q.entry.Mode})
	return true
}

func (m *MatcherService) handleRelease(r releaseReq) {
	m.dropSession(r.sess)
}

// dropSession removes matched entries that still point at sess. A user who
// already searched again, or was paired again with the same partner, keeps
// the new entry.
func (m *MatcherService) dropSession(sess models.Session) {
	for _, id := range sess.Participants {
		if q, ok := m.Queue[id]; ok && q.entry.Matched && q.archiveID == sess.ArchiveID {
			delete(m.Queue, id)
		}
	}
}

// expire abandons searches that waited longer than the timeout.
func (m *MatcherService) expire() {
	now := m.now()
	for id, q := range m.Queue {
		if q.entry.Matched || now.Sub(q.entry.EnqueuedAt) < m.timeout {
			continue
		}
		delete(m.Queue, id)
		m.mirror(id, q.entry.Mode, false)
		deliver(q.resultCh, models.SearchResult{Err: ErrNoMatch})
		m.notify(models.Event{Type: models.EventNoMatch, RecipientID: id, Mode: q.entry.Mode})
		logger.Debugf("matcher: search of %s timed out", id)
	}
}

func (m *MatcherService) snapshot() []models.AvailabilityEntry {
	out := make([]models.AvailabilityEntry, 0, len(m.Queue))
	for _, q := range m.Queue {
		out = append(out, q.entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

func (m *MatcherService) notify(ev models.Event) {
	if m.Notifier != nil {
		m.Notifier.Notify(ev)
	}
}

func (m *MatcherService) mirror(userID string, mode models.Mode, add bool) {
	if m.Storage == nil {
		return
	}
	select {
	case m.mirrorCh <- mirrorOp{userID: userID, mode: mode, add: add}:
	default:
		logger.Warnf("matcher: queue mirror is backed up, dropping update for %s", userID)
	}
}

// runMirror writes queue changes to redis off the matcher goroutine.
func (m *MatcherService) runMirror(ctx context.Context) {
	for {
		select {
		case op := <-m.mirrorCh:
			var err error
			if op.add {
				err = m.Storage.AddUserToSearchQueue(op.userID, op.mode)
			} else {
				err = m.Storage.RemoveUserFromSearchQueue(op.userID)
			}
			if err != nil {
				logger.Warnf("matcher: queue mirror: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func deliver(ch chan models.SearchResult, res models.SearchResult) {
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}
