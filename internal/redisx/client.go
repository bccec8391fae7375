package redisx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Connect returns a client that answered PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := New(addr)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return rdb, nil
}

// Dedup remembers processed event ids for one consumer.
type Dedup struct {
	Redis   *redis.Client
	Service string
}

func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.Redis.Exists(ctx, Key(KeyDedup, d.Service, id)).Result()
	return n > 0, err
}

func (d *Dedup) Mark(ctx context.Context, id string) error {
	return d.Redis.Set(ctx, Key(KeyDedup, d.Service, id), "1", TTLDedup).Err()
}
