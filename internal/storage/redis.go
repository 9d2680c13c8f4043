package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL applies when Set is called with ttl <= 0, matching
// redisWispStore's defaultWispTTL fallback.
const DefaultTTL = 24 * time.Hour

// RedisStore is a Store backed by Redis, for deployments sharing
// brain-loop cache state across multiple primed processes. Grounded on
// beads' redisWispStore: redis.ParseURL + redis.NewClient construction, a
// namespace key prefix, and a startup Ping to fail fast on a bad URL.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies connectivity before returning.
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	if namespace == "" {
		namespace = "prime"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: redis ping failed: %w", err)
	}

	return &RedisStore{client: client, namespace: namespace}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) kvKey(key string) string  { return s.namespace + ":kv:" + key }
func (s *RedisStore) logKey(key string) string { return s.namespace + ":log:" + key }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.kvKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: redis get: %w", err)
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl int64) error {
	expiry := DefaultTTL
	if ttl > 0 {
		expiry = time.Duration(ttl) * time.Second
	}
	if err := s.client.Set(ctx, s.kvKey(key), value, expiry).Err(); err != nil {
		return fmt.Errorf("storage: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.kvKey(key)).Err(); err != nil {
		return fmt.Errorf("storage: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Append(ctx context.Context, key string, entry []byte) error {
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.logKey(key), entry)
	pipe.LTrim(ctx, s.logKey(key), -MaxLogEntries, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Log(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, s.logKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: redis log range: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
