package storage

import (
	"context"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when an archived record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Storage is the durable side of the service: the postgres archive of
// sessions and chat history, the redis mirror of the search queue and the
// redis event bus. Live session state never goes through here.
type Storage interface {
	SaveUser(user *models.User) error

	SaveSession(rec *models.SessionRecord) error
	CloseSession(archiveID string) error
	CloseStaleSessions() (int64, error)
	GetActiveSessionIDs() ([]string, error)
	GetSessionRecord(sessionID string) (*models.SessionRecord, error)

	SaveMessage(archiveID, sessionID string, msg models.Message) error
	GetChatHistory(archiveID string) ([]models.ChatHistory, error)

	PublishEvent(ev models.Event) error
	SubscribeEvents(ctx context.Context) *redis.PubSub

	AddUserToSearchQueue(userID string, mode models.Mode) error
	RemoveUserFromSearchQueue(userID string) error
	GetSearchingUsers() (map[string]models.Mode, error)
	ClearSearchQueue() error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// AutoMigrate creates or updates the archive tables.
func (s *Service) AutoMigrate() error {
	return errors.Wrap(
		s.DB.AutoMigrate(&models.User{}, &models.SessionRecord{}, &models.ChatHistory{}),
		"auto migrate",
	)
}

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(user *models.User) error {
	return errors.Wrapf(s.DB.Save(user).Error, "save user %s", user.ID)
}

// SaveSession archives the start of a session.
func (s *Service) SaveSession(rec *models.SessionRecord) error {
	return errors.Wrapf(s.DB.Save(rec).Error, "save session %s", rec.SessionID)
}

// CloseSession sets IsActive = false and EndedAt = now on one archived pairing.
func (s *Service) CloseSession(archiveID string) error {
	err := s.DB.Model(&models.SessionRecord{}).
		Where("archive_id = ? AND is_active = ?", archiveID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  time.Now(),
		}).Error
	return errors.Wrapf(err, "close session %s", archiveID)
}

// CloseStaleSessions closes every archived session still marked active.
// Live sessions are in memory only, so after a restart none of them exist.
func (s *Service) CloseStaleSessions() (int64, error) {
	res := s.DB.Model(&models.SessionRecord{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  time.Now(),
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "close stale sessions")
	}
	return res.RowsAffected, nil
}

// GetActiveSessionIDs повертає список усіх SessionID, які є активними в даний момент.
func (s *Service) GetActiveSessionIDs() ([]string, error) {
	var ids []string
	if err := s.DB.Model(&models.SessionRecord{}).
		Where("is_active = ?", true).
		Order("started_at asc").
		Pluck("session_id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "active session ids")
	}
	return ids, nil
}

// GetSessionRecord returns the latest archived pairing with sessionID.
func (s *Service) GetSessionRecord(sessionID string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.DB.Where("session_id = ?", sessionID).Order("started_at desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", sessionID)
	}
	return &rec, nil
}

// SaveMessage зберігає повідомлення в PostgreSQL
func (s *Service) SaveMessage(archiveID, sessionID string, msg models.Message) error {
	history := models.ChatHistory{
		MessageID: msg.ID,
		ArchiveID: archiveID,
		SessionID: sessionID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		SentAt:    msg.Timestamp,
	}
	if err := s.DB.Create(&history).Error; err != nil {
		logger.Errorf("failed to save message for session %s: %v", sessionID, err)
		return errors.Wrapf(err, "save message %s", msg.ID)
	}
	return nil
}

// GetChatHistory отримує історію повідомлень однієї сесії, від старих до нових.
func (s *Service) GetChatHistory(archiveID string) ([]models.ChatHistory, error) {
	var history []models.ChatHistory
	if err := s.DB.Where("archive_id = ?", archiveID).Order("sent_at asc, id asc").Find(&history).Error; err != nil {
		return nil, errors.Wrapf(err, "chat history %s", archiveID)
	}
	return history, nil
}
