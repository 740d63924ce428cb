package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost is the cause attached to the callback context when the lease
// could not be renewed and another holder may own the key.
var ErrLockLost = errors.New("lock: lease lost")

// Runner serialises callbacks per key.
type Runner interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Both scripts act only while the stored token is still ours.
var (
	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`)
	renewScript   = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) end return 0`)
)

// Locker is a Redis lease lock. While the callback runs the lease is renewed
// every third of the ttl, so a slow collaborator call does not let a second
// request into the same checkout session. If renewal fails the callback's
// context is cancelled with ErrLockLost.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// WithLock implements Runner. It waits for the key until ctx is done.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.Prefix + key
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() { _ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err() }()

	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.keepAlive(leaseCtx, cancel, key, token, ttl)
	}()
	err := fn(leaseCtx)
	cancel(nil)
	<-stopped
	return err
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	ticker := time.NewTicker(wait)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock: wait for %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l Locker) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
		if ctx.Err() != nil {
			return
		}
		if err != nil || n == 0 {
			cancel(ErrLockLost)
			return
		}
	}
}
