package presence

import (
	"context"
	"strconv"
	"time"

	"randomchat/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "randomchat:presence:"
	onlineIndexKey    = "randomchat:presence:online"
	// records outlive their lease so LastSeen stays readable for a while
	recordRetention = 24 * time.Hour
)

func presenceKey(userID string) string { return presenceKeyPrefix + userID }

// RedisStore keeps one hash per user plus a sorted set of online users
// scored by last-seen time. Both are written in a single MULTI.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, rec models.PresenceRecord) error {
	ms := rec.LastSeen.UnixMilli()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := presenceKey(rec.UserID)
		pipe.HSet(ctx, key, "online", strconv.FormatBool(rec.Online), "last_seen", ms)
		pipe.Expire(ctx, key, recordRetention)
		if rec.Online {
			pipe.ZAdd(ctx, onlineIndexKey, redis.Z{Score: float64(ms), Member: rec.UserID})
		} else {
			pipe.ZRem(ctx, onlineIndexKey, rec.UserID)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "presence put %s", rec.UserID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (models.PresenceRecord, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return models.PresenceRecord{}, false, errors.Wrapf(err, "presence get %s", userID)
	}
	if len(vals) == 0 {
		return models.PresenceRecord{}, false, nil
	}
	online, _ := strconv.ParseBool(vals["online"])
	ms, _ := strconv.ParseInt(vals["last_seen"], 10, 64)
	return models.PresenceRecord{
		UserID:   userID,
		Online:   online,
		LastSeen: time.UnixMilli(ms),
	}, true, nil
}

// CountOnline also trims index members whose lease ran out.
func (s *RedisStore) CountOnline(ctx context.Context, since time.Time) (int64, error) {
	cutoff := strconv.FormatInt(since.UnixMilli(), 10)
	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, onlineIndexKey, "-inf", "("+cutoff)
	count := pipe.ZCount(ctx, onlineIndexKey, cutoff, "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "presence count")
	}
	return count.Val(), nil
}
