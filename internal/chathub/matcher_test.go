package chathub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu       sync.Mutex
	events   []models.Event
	sessions []models.Session
}

func (r *recorder) Notify(ev models.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) SessionStarted(sess models.Session) {
	r.mu.Lock()
	r.sessions = append(r.sessions, sess)
	r.mu.Unlock()
}

func (r *recorder) types(userID string) []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EventType
	for _, ev := range r.events {
		if ev.RecipientID == userID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func startMatcher(t *testing.T, timeout time.Duration) (*chathub.MatcherService, *session.Store, *recorder) {
	t.Helper()
	store := session.NewStore(50 * time.Millisecond)
	rec := &recorder{}
	m := chathub.NewMatcherService(store, rec, nil, timeout, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m, store, rec
}

func submit(t *testing.T, m *chathub.MatcherService, userID string, mode models.Mode) chan models.SearchResult {
	t.Helper()
	ch := make(chan models.SearchResult, 1)
	require.NoError(t, m.Submit(context.Background(), models.SearchRequest{UserID: userID, Mode: mode, ResultCh: ch}))
	return ch
}

func result(t *testing.T, ch chan models.SearchResult) models.SearchResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no search result")
	}
	return models.SearchResult{}
}

// TestMatcher_SameTick: A and B search at the same moment and end up in one
// session, both entries marked matched and pointing at it.
func TestMatcher_SameTick(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)

	var wg sync.WaitGroup
	results := make(map[string]models.SearchResult)
	var mu sync.Mutex
	for _, id := range []string{"A", "B"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := m.Find(context.Background(), id, models.ModeVideo)
			assert.NoError(t, err)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count(), "exactly one session")
	assert.Equal(t, "A_B", results["A"].SessionID)
	assert.Equal(t, "A_B", results["B"].SessionID)
	assert.Equal(t, "B", results["A"].PartnerID)
	assert.NotEqual(t, results["A"].Initiator, results["B"].Initiator, "exactly one initiator")

	sess, err := store.Get("A_B")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, sess.Participants[:])

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.True(t, e.Matched)
		assert.Equal(t, "A_B", e.SessionID)
	}
}

func TestMatcher_CancelBeforeMatch(t *testing.T) {
	m, store, rec := startMatcher(t, time.Minute)

	ch := submit(t, m, "A", models.ModeText)
	assert.True(t, m.Cancel("A"))

	res := result(t, ch)
	assert.ErrorIs(t, res.Err, chathub.ErrSearchCanceled)
	assert.Empty(t, m.Snapshot(), "entry removed")
	assert.Equal(t, 0, store.Count(), "no session created")
	assert.Equal(t, []models.EventType{models.EventSearchStarted, models.EventSearchCanceled}, rec.types("A"))

	assert.False(t, m.Cancel("A"), "nothing left to cancel")
}

func TestMatcher_CancelAfterMatchIsRefused(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)

	submit(t, m, "A", models.ModeText)
	result(t, submit(t, m, "B", models.ModeText))

	assert.False(t, m.Cancel("A"))
	assert.Equal(t, 1, store.Count())
}

func TestMatcher_Timeout(t *testing.T) {
	m, store, rec := startMatcher(t, 50*time.Millisecond)

	_, err := m.Find(context.Background(), "lonely", models.ModeVideo)

	assert.ErrorIs(t, err, chathub.ErrNoMatch)
	assert.Empty(t, m.Snapshot())
	assert.Equal(t, 0, store.Count())
	assert.Contains(t, rec.types("lonely"), models.EventNoMatch)
}

func TestMatcher_FindContextCanceled(t *testing.T) {
	m, _, _ := startMatcher(t, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.Find(ctx, "A", models.ModeVideo)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, m.Snapshot(), "abandoned search is withdrawn")
}

// TestMatcherNoSelfMatch ensures a user cannot be matched with themselves.
func TestMatcherNoSelfMatch(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)

	first := submit(t, m, "solo", models.ModeVideo)
	submit(t, m, "solo", models.ModeVideo)

	assert.ErrorIs(t, result(t, first).Err, chathub.ErrSearchCanceled, "replaced by the newer search")
	snap := m.Snapshot()
	require.Len(t, snap, 1, "at most one entry per user")
	assert.False(t, snap[0].Matched)
	assert.Equal(t, 0, store.Count())
}

func TestMatcher_ModesDoNotMix(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)

	submit(t, m, "video-user", models.ModeVideo)
	submit(t, m, "text-user", models.ModeText)

	assert.Len(t, m.Snapshot(), 2)
	assert.Equal(t, 0, store.Count())
}

func TestMatcher_InvalidMode(t *testing.T) {
	m, _, _ := startMatcher(t, time.Minute)

	err := m.Submit(context.Background(), models.SearchRequest{UserID: "A", Mode: "audio"})

	assert.ErrorIs(t, err, chathub.ErrInvalidMode)
}

// TestMatcher_NoDoubleSessions floods the matcher and checks every user is
// bound to at most one session, and that the session agrees with the result.
func TestMatcher_NoDoubleSessions(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)
	const users = 40

	var wg sync.WaitGroup
	results := make([]models.SearchResult, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Find(context.Background(), fmt.Sprintf("u%02d", i), models.ModeText)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, users/2, store.Count())
	partners := make(map[string]string)
	for i, res := range results {
		id := fmt.Sprintf("u%02d", i)
		sess, ok := store.SessionFor(id)
		require.True(t, ok, "%s has a session", id)
		assert.Equal(t, res.SessionID, sess.ID)
		assert.Equal(t, sess.ID, session.ID(id, res.PartnerID))
		partners[id] = res.PartnerID
	}
	for id, p := range partners {
		assert.Equal(t, id, partners[p], "pairing is symmetric")
	}
}

func TestMatcher_NewSearchLeavesOldSession(t *testing.T) {
	m, store, rec := startMatcher(t, time.Minute)
	submit(t, m, "A", models.ModeVideo)
	first := result(t, submit(t, m, "B", models.ModeVideo))

	submit(t, m, "A", models.ModeVideo)

	snap := m.Snapshot()
	require.Len(t, snap, 1, "B's matched entry is gone, A searches again")
	assert.Equal(t, "A", snap[0].UserID)
	assert.False(t, snap[0].Matched)

	_, err := store.Get(first.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound, "old session torn down")
	_, ok := store.SessionFor("B")
	assert.False(t, ok)
	assert.Len(t, rec.sessions, 1)
}

func TestMatcher_ReleaseDropsMatchedEntries(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)
	submit(t, m, "A", models.ModeText)
	res := result(t, submit(t, m, "B", models.ModeText))

	sess, ok := store.End(res.SessionID)
	require.True(t, ok)
	m.Release(sess)

	assert.Eventually(t, func() bool { return len(m.Snapshot()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestMatcher_LateReleaseKeepsRepeatPairing(t *testing.T) {
	m, store, _ := startMatcher(t, time.Minute)
	submit(t, m, "A", models.ModeText)
	res := result(t, submit(t, m, "B", models.ModeText))
	old, ok := store.End(res.SessionID)
	require.True(t, ok)

	// the same two users meet again before the release arrives
	submit(t, m, "A", models.ModeText)
	again := result(t, submit(t, m, "B", models.ModeText))
	require.Equal(t, res.SessionID, again.SessionID)

	m.Release(old)

	assert.Never(t, func() bool { return len(m.Snapshot()) != 2 }, 100*time.Millisecond, 10*time.Millisecond)
	snap := m.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.True(t, e.Matched)
	}
}

func TestMatcher_MirrorsQueueToStorage(t *testing.T) {
	st := new(MockStorage)
	added := make(chan string, 4)
	removed := make(chan string, 4)
	st.On("ClearSearchQueue").Return(nil).Once()
	st.On("AddUserToSearchQueue", mock.Anything, models.ModeText).Return(nil).
		Run(func(args mock.Arguments) { added <- args.String(0) })
	st.On("RemoveUserFromSearchQueue", mock.Anything).Return(nil).
		Run(func(args mock.Arguments) { removed <- args.String(0) })

	store := session.NewStore(time.Second)
	m := chathub.NewMatcherService(store, nil, st, time.Minute, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	submit(t, m, "A", models.ModeText)
	assert.Equal(t, "A", <-added)
	assert.True(t, m.Cancel("A"))
	assert.Equal(t, "A", <-removed)
	st.AssertCalled(t, "ClearSearchQueue")
}
