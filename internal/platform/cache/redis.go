package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopx/api/internal/platform/config"
)

// RedisStore keeps entries in Redis so replicas share one cache.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient dials the configured Redis server.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + ":entry:" + key }

func (s *RedisStore) generationKey(scope string) string { return s.prefix + ":gen:" + scope }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.entryKey(key), value, ttl).Err()
}

func (s *RedisStore) Generation(ctx context.Context, scope string) (int64, error) {
	gen, err := s.client.Get(ctx, s.generationKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *RedisStore) Bump(ctx context.Context, scope string) error {
	return s.client.Incr(ctx, s.generationKey(scope)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
