package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Store implementation. Records are JSON
// encoded under "inference:{kind}:{key}".
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(kind, key string) string {
	return fmt.Sprintf("inference:%s:%s", kind, key)
}

func kindPattern(kind string) string {
	return fmt.Sprintf("inference:%s:*", kind)
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, kind, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	if err := s.client.Set(ctx, redisKey(kind, key), data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to save record")
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, kind, key string, out any) error {
	data, err := s.client.Get(ctx, redisKey(kind, key)).Bytes()
	if err == redis.Nil {
		return errors.Wrapf(ErrNotFound, "%s/%s", kind, key)
	}
	if err != nil {
		return errors.Wrap(err, "failed to get record")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal record")
	}
	return nil
}

// All implements Store. Keys are scanned incrementally so large kinds do
// not block the server.
func (s *RedisStore) All(ctx context.Context, kind string) ([][]byte, error) {
	var records [][]byte
	iter := s.client.Scan(ctx, 0, kindPattern(kind), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to get record during scan")
		}
		records = append(records, data)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan records")
	}
	return records, nil
}
