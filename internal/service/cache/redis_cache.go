package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBytesCache is a BytesCache over a shared Redis client, for response
// caching that survives restarts and is visible to all replicas.
type RedisBytesCache struct {
	cli    *redis.Client
	prefix string
}

func NewRedisBytesCache(cli *redis.Client, prefix string) *RedisBytesCache {
	return &RedisBytesCache{cli: cli, prefix: prefix}
}

func (r *RedisBytesCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBytesCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(context.Background(), r.prefix+key, value, ttl).Err()
}
