package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
)

// RedisLocker guards demo job continuations across instances. Without a client every
// Obtain succeeds and the job lease alone serializes steps.
type RedisLocker struct {
	Client *redislock.Client
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

type noopUnlocker struct{}

func (noopUnlocker) Release(context.Context) error { return nil }

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (demogen.Unlocker, error) {
	if l == nil || l.Client == nil {
		return noopUnlocker{}, nil
	}
	lock, err := l.Client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, demogen.ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
