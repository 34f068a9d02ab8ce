package storage

import (
	"context"
	"encoding/json"

	"randomchat/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// EventsChannel carries lifecycle events of every node.
	EventsChannel  = "randomchat:events"
	searchQueueKey = "randomchat:search_queue"
)

// PublishEvent публікує подію в Redis Pub/Sub
func (s *Service) PublishEvent(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	return errors.Wrapf(s.Redis.Publish(s.Ctx, EventsChannel, payload).Err(), "publish %s", ev.Type)
}

// SubscribeEvents subscribes to EventsChannel. The caller closes the PubSub.
func (s *Service) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, EventsChannel)
}

// AddUserToSearchQueue mirrors a new search into redis for operators.
func (s *Service) AddUserToSearchQueue(userID string, mode models.Mode) error {
	return errors.Wrapf(s.Redis.HSet(s.Ctx, searchQueueKey, userID, string(mode)).Err(), "queue add %s", userID)
}

// RemoveUserFromSearchQueue видаляє користувача з дзеркала черги пошуку
func (s *Service) RemoveUserFromSearchQueue(userID string) error {
	return errors.Wrapf(s.Redis.HDel(s.Ctx, searchQueueKey, userID).Err(), "queue remove %s", userID)
}

// GetSearchingUsers повертає всіх користувачів, які зараз шукають пару
func (s *Service) GetSearchingUsers() (map[string]models.Mode, error) {
	vals, err := s.Redis.HGetAll(s.Ctx, searchQueueKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "queue members")
	}
	out := make(map[string]models.Mode, len(vals))
	for user, mode := range vals {
		out[user] = models.Mode(mode)
	}
	return out, nil
}

// ClearSearchQueue empties the mirror. The matcher calls it on startup.
func (s *Service) ClearSearchQueue() error {
	return errors.Wrap(s.Redis.Del(s.Ctx, searchQueueKey).Err(), "queue clear")
}
