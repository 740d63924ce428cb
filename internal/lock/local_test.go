package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/lock"
)

func TestLocalSerialisesSameKey(t *testing.T) {
	l := lock.NewLocal()
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "s1", 0, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					prev := atomic.LoadInt32(&maxSeen)
					if n <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxSeen)
}

func TestLocalHonoursContext(t *testing.T) {
	l := lock.NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "s1", 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "s1", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other := l.WithLock(context.Background(), "s2", 0, func(context.Context) error { return nil })
	require.NoError(t, other)
	close(release)
}
