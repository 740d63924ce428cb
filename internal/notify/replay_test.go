package notify_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/notify"
)

func TestRedisReplayGuardStates(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	guard := notify.RedisReplayGuard{Client: rdb}
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "wh:a:1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = guard.Claim(ctx, "wh:a:1")
	require.NoError(t, err)
	require.False(t, ok, "in-flight claim blocks a concurrent attempt")

	require.NoError(t, guard.Forget(ctx, "wh:a:1"))
	ok, err = guard.Claim(ctx, "wh:a:1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Confirm(ctx, "wh:a:1", time.Hour))
	require.NoError(t, guard.Forget(ctx, "wh:a:1"))
	got, err := mr.Get("wh:a:1")
	require.NoError(t, err)
	require.Equal(t, "sent", got)
	require.Equal(t, time.Hour, mr.TTL("wh:a:1"))
}

func TestReplayGuardWithoutRedisAllowsEverything(t *testing.T) {
	guard := notify.RedisReplayGuard{}
	ok, err := guard.Claim(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, guard.Confirm(context.Background(), "k", time.Minute))
	require.NoError(t, guard.Forget(context.Background(), "k"))
}
