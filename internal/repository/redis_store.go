package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore keeps each document under prefix:name
func NewRedisStore(client *redis.Client, prefix string) DocumentStore {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

func (s *redisStore) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s from redis: %w", name, err)
	}
	return data, nil
}

// Write relies on SET replacing the value atomically
func (s *redisStore) Write(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", name, err)
	}
	return nil
}
