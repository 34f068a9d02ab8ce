package chathub

import (
	"context"
	"encoding/json"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/storage"
)

func (m *ManagerService) publish(ev models.Event) {
	if m.Storage == nil {
		return
	}
	select {
	case m.publishCh <- ev:
	default:
		logger.Warnf("event bus backed up, dropped %s for %s", ev.Type, ev.RecipientID)
	}
}

// runPublisher пересилає події хаба в Redis Pub/Sub.
func (m *ManagerService) runPublisher(ctx context.Context) {
	for {
		select {
		case ev := <-m.publishCh:
			if err := m.Storage.PublishEvent(ev); err != nil {
				logger.Warnf("publish %s: %v", ev.Type, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// WatchEvents слухає Redis Pub/Sub і віддає події всіх вузлів у fn, поки
// ctx не завершено.
func WatchEvents(ctx context.Context, st storage.Storage, fn func(models.Event)) error {
	pubsub := st.SubscribeEvents(ctx)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warnf("bad event on %s: %v", msg.Channel, err)
				continue
			}
			fn(ev)
		case <-ctx.Done():
			return nil
		}
	}
}
