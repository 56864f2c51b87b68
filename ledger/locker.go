package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// Locker serializes version minting per entity across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type RedisLocker struct {
	Client *redislock.Client
	TTL    time.Duration
	Wait   time.Duration
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{Client: client, TTL: 10 * time.Second, Wait: 2 * time.Second}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.Client == nil {
		return nil, errors.New("redis lock not initialized")
	}
	backoff := redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.Wait/(50*time.Millisecond)))
	lock, err := l.Client.Obtain(ctx, "version-mint:"+key, l.TTL, &redislock.Options{RetryStrategy: backoff})
	if err != nil {
		return nil, err
	}
	return func() {
		// release on a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}

// NoopLocker is used when redis is not configured. The unique
// (entity_uuid, version) index still guarantees monotonic versions.
type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}
