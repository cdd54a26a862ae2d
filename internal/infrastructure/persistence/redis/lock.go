package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock cannot be acquired before the context ends.
var ErrLockTimeout = errors.New("lock: acquire timeout")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a SET NX PX lock with token-checked release.
type Lock struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewLock creates a Lock. Zero ttl uses TTLLock.
func NewLock(cache *Cache, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = TTLLock
	}
	return &Lock{client: cache.Client(), ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls until key is acquired or ctx ends.
func (l *Lock) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := LockKey(key)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{k}, token).Err()
	}, nil
}
