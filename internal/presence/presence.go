// Package presence tracks which users are currently connected.
//
// A record is a lease: it reads as online only while LastSeen is within the
// configured TTL, so a client that vanishes without a clean disconnect drops
// offline on its own once it stops sending heartbeats.
package presence

import (
	"context"
	"time"

	"randomchat/backend/internal/models"
)

// Store persists presence records. Put is last-writer-wins.
type Store interface {
	Put(ctx context.Context, rec models.PresenceRecord) error
	Get(ctx context.Context, userID string) (models.PresenceRecord, bool, error)
	// CountOnline counts records marked online with LastSeen at or after since.
	CountOnline(ctx context.Context, since time.Time) (int64, error)
}

// Registry is the presence API used by the hub and the HTTP handlers.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistry(store Store, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl, now: time.Now}
}

// Connect marks userID online and starts its lease.
func (r *Registry) Connect(ctx context.Context, userID string) error {
	return r.put(ctx, userID, true)
}

// Heartbeat renews the lease of userID.
func (r *Registry) Heartbeat(ctx context.Context, userID string) error {
	return r.put(ctx, userID, true)
}

// Disconnect marks userID offline immediately.
func (r *Registry) Disconnect(ctx context.Context, userID string) error {
	return r.put(ctx, userID, false)
}

func (r *Registry) put(ctx context.Context, userID string, online bool) error {
	return r.store.Put(ctx, models.PresenceRecord{
		UserID:   userID,
		Online:   online,
		LastSeen: r.now(),
	})
}

// Get returns the effective record for userID. Unknown users are offline.
func (r *Registry) Get(ctx context.Context, userID string) (models.PresenceRecord, error) {
	rec, ok, err := r.store.Get(ctx, userID)
	if err != nil {
		return models.PresenceRecord{}, err
	}
	if !ok {
		return models.PresenceRecord{UserID: userID}, nil
	}
	if rec.Online && r.expired(rec.LastSeen) {
		rec.Online = false
	}
	return rec, nil
}

// OnlineCount returns how many users hold a live lease.
func (r *Registry) OnlineCount(ctx context.Context) (int64, error) {
	return r.store.CountOnline(ctx, r.now().Add(-r.ttl))
}

func (r *Registry) expired(lastSeen time.Time) bool {
	return r.now().Sub(lastSeen) > r.ttl
}
