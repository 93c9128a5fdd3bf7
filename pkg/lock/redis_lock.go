package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"marketplace/pkg/log"
)

var (
	// ErrLockNotAcquired another owner holds the lock
	ErrLockNotAcquired = errors.New("failed to acquire lock")
	// ErrLockNotHeld lock is not held by this owner
	ErrLockNotHeld = errors.New("lock not held")
)

const (
	unlockScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	extendScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// RedisLock is a single-owner lease on a Redis key
type RedisLock struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration
}

// NewRedisLock creates a new Redis lock owned by value
func NewRedisLock(client redis.Cmdable, key, value string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}
}

// Key returns the Redis key guarded by the lock
func (l *RedisLock) Key() string {
	return l.key
}

// Lock acquires the lock once, without waiting
func (l *RedisLock) Lock(ctx context.Context) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return err
	}
	if !success {
		return ErrLockNotAcquired
	}
	return nil
}

// TryLock tries to acquire the lock up to maxRetries times
func (l *RedisLock) TryLock(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.Lock(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return err
		}
		if i == maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// Unlock releases the lock if this owner still holds it
func (l *RedisLock) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend extends the lock TTL
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, int(ttl.Milliseconds())).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// RedisLockerConfig configures how named locks are acquired
type RedisLockerConfig struct {
	Prefix     string        `mapstructure:"prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RedisLocker serialises critical sections across processes
type RedisLocker struct {
	client redis.Cmdable
	config RedisLockerConfig
}

// NewRedisLocker creates a Locker backed by Redis
func NewRedisLocker(client redis.Cmdable, config RedisLockerConfig) *RedisLocker {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 20
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, config: config}
}

// WithLock runs fn while holding the lock named key and returns fn's result.
// Once fn has run its work is committed, so a failed release (an expired
// lease or an unreachable redis) is logged rather than returned.
func (rl *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l := NewRedisLock(rl.client, rl.config.Prefix+key, uuid.NewString(), rl.config.TTL)
	if err := l.TryLock(ctx, rl.config.MaxRetries, rl.config.RetryDelay); err != nil {
		return err
	}

	fnErr := fn(ctx)

	// release even if the caller's context was cancelled meanwhile
	if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
		log.WithFields(map[string]interface{}{
			"key":   l.Key(),
			"ttl":   rl.config.TTL.String(),
			"error": err.Error(),
		}).Warn("Lock released after its lease expired")
	}
	return fnErr
}
