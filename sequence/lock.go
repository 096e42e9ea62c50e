package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// Locker serializes allocation within one scope key. The returned release runs
// after the surrounding transaction has committed or rolled back.
type Locker interface {
	Lock(ctx context.Context, tx *gorm.DB, key string) (release func(context.Context), err error)
}

type noLock struct{}

// NoLock relies on the unique index alone.
var NoLock Locker = noLock{}

func (noLock) Lock(context.Context, *gorm.DB, string) (func(context.Context), error) {
	return func(context.Context) {}, nil
}

// RedisLocker holds a redislock lease per scope key.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, _ *gorm.DB, key string) (func(context.Context), error) {
	if l.client == nil {
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	backoff := 50 * time.Millisecond
	lock, err := l.client.Obtain(ctx, "sequence:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(backoff), int(l.ttl/backoff)),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("could not obtain sequence lock for %s: %w", key, err)
	} else if err != nil {
		return nil, fmt.Errorf("obtain sequence lock for %s: %w", key, err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

// AdvisoryLocker takes a postgres transaction-level advisory lock; the
// database drops it when the transaction ends.
type AdvisoryLocker struct{}

func (AdvisoryLocker) Lock(ctx context.Context, tx *gorm.DB, key string) (func(context.Context), error) {
	if err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return func(context.Context) {}, nil
}
