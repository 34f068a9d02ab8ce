package chathub_test

import (
	"context"

	"randomchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

// newMockStorage allows the background traffic every hub produces (queue
// mirror, event bus). Tests add expectations for what they check.
func newMockStorage() *MockStorage {
	m := new(MockStorage)
	m.On("ClearSearchQueue").Return(nil).Maybe()
	m.On("AddUserToSearchQueue", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("RemoveUserFromSearchQueue", mock.Anything).Return(nil).Maybe()
	m.On("PublishEvent", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockStorage) SaveUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) SaveSession(rec *models.SessionRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStorage) CloseSession(archiveID string) error {
	args := m.Called(archiveID)
	return args.Error(0)
}

func (m *MockStorage) CloseStaleSessions() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetActiveSessionIDs() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) GetSessionRecord(sessionID string) (*models.SessionRecord, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionRecord), args.Error(1)
}

func (m *MockStorage) SaveMessage(archiveID, sessionID string, msg models.Message) error {
	args := m.Called(archiveID, sessionID, msg)
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(archiveID string) ([]models.ChatHistory, error) {
	args := m.Called(archiveID)
	return args.Get(0).([]models.ChatHistory), args.Error(1)
}

func (m *MockStorage) PublishEvent(ev models.Event) error {
	args := m.Called(ev)
	return args.Error(0)
}

func (m *MockStorage) SubscribeEvents(ctx context.Context) *redis.PubSub {
	args := m.Called(ctx)
	return args.Get(0).(*redis.PubSub)
}

func (m *MockStorage) AddUserToSearchQueue(userID string, mode models.Mode) error {
	args := m.Called(userID, mode)
	return args.Error(0)
}

func (m *MockStorage) RemoveUserFromSearchQueue(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) GetSearchingUsers() (map[string]models.Mode, error) {
	args := m.Called()
	return args.Get(0).(map[string]models.Mode), args.Error(1)
}

func (m *MockStorage) ClearSearchQueue() error {
	args := m.Called()
	return args.Error(0)
}
