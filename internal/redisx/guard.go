package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard is a checkout.Guard shared by every storefront instance.
type Guard struct {
	Redis *redis.Client
	TTL   time.Duration
}

func (g *Guard) Acquire(ctx context.Context, key, owner string) (bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = TTLGuard
	}
	k := Key(KeyCheckoutGuard, key)
	ok, err := g.Redis.SetNX(ctx, k, owner, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	// Re-acquiring our own key refreshes it.
	cur, err := g.Redis.Get(ctx, k).Result()
	if err == redis.Nil {
		return g.Redis.SetNX(ctx, k, owner, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if cur != owner {
		return false, nil
	}
	return true, g.Redis.Expire(ctx, k, ttl).Err()
}

func (g *Guard) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, g.Redis, []string{Key(KeyCheckoutGuard, key)}, owner).Err()
}
