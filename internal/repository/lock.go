package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockHeld is returned when another request holds the lock.
var ErrLockHeld = errors.New("lock is held by another request")

// RedisLocker hands out short-lived mutexes shared by every server instance.
type RedisLocker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client))}
}

// Lock acquires name for at most ttl, retrying briefly. The returned release
// func is safe to call once.
func (l *RedisLocker) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	m := l.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(5),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := m.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, ctx.Err())
		}
		if errors.Is(err, redsync.ErrFailed) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLockHeld, name, err)
	}
	return func() {
		if _, err := m.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("lock", name).Msg("failed to release lock")
		}
	}, nil
}
