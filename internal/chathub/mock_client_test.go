package chathub_test

import (
	"sync/atomic"
	"testing"
	"time"

	"randomchat/backend/internal/models"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.Event
	closed      atomic.Bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.Event, 32),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }
func (c *MockClient) Run()                                {}
func (c *MockClient) Close()                              { c.closed.Store(true) }
func (c *MockClient) IsClosed() bool                      { return c.closed.Load() }

// next waits for the next event of the given type, skipping others.
func (c *MockClient) next(t *testing.T, typ models.EventType) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.RecvChannel:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			require.FailNowf(t, "event not received", "%s never got %s", c.userID, typ)
		}
	}
}
