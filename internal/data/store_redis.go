package data

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/yola1107/puppeteer/internal/conf"
)

const (
	defaultMinIdle  = 1
	defaultPoolSize = 4
)

func NewRedis(c *conf.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     defaultPoolSize,
		MinIdleConns: defaultMinIdle,
	})
}

// RedisStore keeps the blob under a single key.
type RedisStore struct {
	rdb redis.Cmdable
	key string
}

func NewRedisStore(rdb redis.Cmdable, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	return b, err
}

func (s *RedisStore) Save(ctx context.Context, blob []byte) error {
	return s.rdb.Set(ctx, s.key, blob, 0).Err()
}
