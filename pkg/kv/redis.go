package kv

import (
	"context"
	"errors"
	"time"

	"github.com/StricklySoft/contentflow/pkg/clients/redis"
)

// RedisClient is the part of *redis.Client that RedisStore needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

var _ RedisClient = (*redis.Client)(nil)

// RedisStore is the production Store. TTLs map to Redis expiry and List
// walks the keyspace with SCAN.
type RedisStore struct {
	client RedisClient
}

// NewRedisStore returns a Store over client.
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.client.ScanPrefix(ctx, prefix)
}
