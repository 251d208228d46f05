package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/atlasbank/swift-portal/pkg/redis"
)

// ErrLimitExceeded is returned once a counter passes its budget.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter is a fixed-window counter in redis. Counters live in the
// shared store, not process memory, so the budget holds across server
// instances.
type Limiter struct {
	redis  redis.RedisAdapter
	prefix string
	max    int64
	window time.Duration
}

func NewLimiter(redisAdapter redis.RedisAdapter, prefix string, max int, window time.Duration) *Limiter {
	return &Limiter{
		redis:  redisAdapter,
		prefix: prefix,
		max:    int64(max),
		window: window,
	}
}

// Allow consumes one unit of key's budget. It returns ErrLimitExceeded
// once the window's budget is spent.
func (l *Limiter) Allow(key string) error {
	count, err := l.redis.IncrWithTTL(l.prefix+key, l.window)
	if err != nil {
		return fmt.Errorf("rate limit incr: %w", err)
	}
	if count > l.max {
		return ErrLimitExceeded
	}
	return nil
}

// Lockout tracks consecutive authentication failures per credential
// identity inside a rolling window. It is keyed by identity, not IP, so
// credential stuffing against one account locks that account only.
type Lockout struct {
	redis       redis.RedisAdapter
	prefix      string
	maxFailures int64
	window      time.Duration
}

func NewLockout(redisAdapter redis.RedisAdapter, prefix string, maxFailures int, window time.Duration) *Lockout {
	return &Lockout{
		redis:       redisAdapter,
		prefix:      prefix,
		maxFailures: int64(maxFailures),
		window:      window,
	}
}

// Locked reports whether the identity has exhausted its failure budget.
func (l *Lockout) Locked(identityKey string) (bool, error) {
	data, err := l.redis.Get(l.prefix + identityKey)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return false, nil
		}
		return false, err
	}
	var count int64
	fmt.Sscanf(string(data), "%d", &count)
	return count >= l.maxFailures, nil
}

// RecordFailure bumps the identity's failure counter. Each failure
// pushes the window out, making it rolling rather than fixed.
func (l *Lockout) RecordFailure(identityKey string) (int64, error) {
	key := l.prefix + identityKey
	count, err := l.redis.Incr(key)
	if err != nil {
		return 0, err
	}
	if err := l.redis.Expire(key, l.window); err != nil {
		return count, err
	}
	return count, nil
}

// Reset clears the failure counter after a successful authentication.
func (l *Lockout) Reset(identityKey string) error {
	return l.redis.Del(l.prefix + identityKey)
}

func (l *Lockout) MaxFailures() int64 {
	return l.maxFailures
}
