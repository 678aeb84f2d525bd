package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ArticleLockKey builds redis keys for the per-article single-writer section.
func ArticleLockKey(articleID string) string {
	return fmt.Sprintf("production:article:%s:lock", articleID)
}

// LockerConfig tunes lock expiry and contention behaviour.
type LockerConfig struct {
	TTL           time.Duration
	RetryInterval time.Duration
	RetryAttempts int
}

// Locker hands out short-lived distributed locks backed by Redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewLocker constructs a Locker on top of an existing redis client.
func NewLocker(client *redis.Client, cfg LockerConfig) *Locker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := redislock.NoRetry()
	if cfg.RetryAttempts > 0 {
		interval := cfg.RetryInterval
		if interval <= 0 {
			interval = 50 * time.Millisecond
		}
		retry = redislock.LimitRetry(redislock.LinearBackoff(interval), cfg.RetryAttempts)
	}
	return &Locker{client: redislock.New(client), ttl: ttl, retry: retry}
}

// Obtain acquires key and returns its release function. ErrLocked is returned
// when the key stays held after the configured retries.
func (l *Locker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locker not initialised")
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, key)
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
