package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "profile:user:"

// RedisStore keeps each user's profile fields in one Redis hash.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetField(ctx context.Context, userID uint, field string) (*string, error) {
	v, err := s.client.HGet(ctx, redisKey(userID), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// SetFields writes in a MULTI/EXEC block so readers never see a partial update.
func (s *RedisStore) SetFields(ctx context.Context, userID uint, fields map[string]*string) error {
	key := redisKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, value := range fields {
			if value == nil {
				pipe.HDel(ctx, key, field)
				continue
			}
			pipe.HSet(ctx, key, field, *value)
		}
		return nil
	})
	return err
}

func redisKey(userID uint) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, userID)
}
