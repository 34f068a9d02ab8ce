package presence

import (
	"context"
	"sync"
	"time"

	"randomchat/backend/internal/models"
)

// MemoryStore keeps presence in process memory. Used by single-node setups
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.PresenceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.PresenceRecord)}
}

func (s *MemoryStore) Put(_ context.Context, rec models.PresenceRecord) error {
	s.mu.Lock()
	s.records[rec.UserID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (models.PresenceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}

func (s *MemoryStore) CountOnline(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if rec.Online && !rec.LastSeen.Before(since) {
			n++
		}
	}
	return n, nil
}
