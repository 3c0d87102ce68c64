package database

import (
	"context"
	"errors"

	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps each blob under a plain string key.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(ctx context.Context, redisClient *redis.Client) (*RedisStorage, error) {
	// Проверка подключения
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStorage{client: redisClient}, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, entity.ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
