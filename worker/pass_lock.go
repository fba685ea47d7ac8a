package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PassLock keeps scheduler passes from overlapping across processes.
type PassLock interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

const defaultPassLockKey = "raiseflow:scheduler:pass"

// Deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisPassLock struct {
	client *redis.Client
	key    string
}

func NewRedisPassLock(client *redis.Client, key string) *RedisPassLock {
	if key == "" {
		key = defaultPassLockKey
	}
	return &RedisPassLock{client: client, key: key}
}

func (l *RedisPassLock) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire pass lock: %w", err)
	}
	return ok, nil
}

func (l *RedisPassLock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release pass lock: %w", err)
	}
	return nil
}
