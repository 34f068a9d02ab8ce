package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(NewMemoryStore(), ttl)
	r.now = clock.Now
	return r, clock
}

func TestRegistry_ConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(time.Minute)

	require.NoError(t, r.Connect(ctx, "alice"))
	rec, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.Equal(t, clock.Now(), rec.LastSeen)

	clock.Advance(time.Second)
	require.NoError(t, r.Disconnect(ctx, "alice"))
	rec, err = r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, rec.Online)
	assert.Equal(t, clock.Now(), rec.LastSeen)
}

func TestRegistry_UnknownUserIsOffline(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)

	rec, err := r.Get(context.Background(), "ghost")

	require.NoError(t, err)
	assert.Equal(t, "ghost", rec.UserID)
	assert.False(t, rec.Online)
	assert.True(t, rec.LastSeen.IsZero())
}

func TestRegistry_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(time.Minute)
	require.NoError(t, r.Connect(ctx, "alice"))

	clock.Advance(59 * time.Second)
	rec, _ := r.Get(ctx, "alice")
	assert.True(t, rec.Online, "lease should still be valid")

	clock.Advance(2 * time.Second)
	rec, _ = r.Get(ctx, "alice")
	assert.False(t, rec.Online, "lease should have expired")

	require.NoError(t, r.Heartbeat(ctx, "alice"))
	rec, _ = r.Get(ctx, "alice")
	assert.True(t, rec.Online, "heartbeat renews the lease")
}

func TestRegistry_OnlineCount(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(time.Minute)

	require.NoError(t, r.Connect(ctx, "a"))
	clock.Advance(30 * time.Second)
	require.NoError(t, r.Connect(ctx, "b"))
	require.NoError(t, r.Connect(ctx, "c"))
	require.NoError(t, r.Disconnect(ctx, "c"))

	n, err := r.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(45 * time.Second)
	n, err = r.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a's lease expired")
}
