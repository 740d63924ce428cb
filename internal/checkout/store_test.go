package checkout

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

func sampleSession(id string) *Session {
	snap, _ := pricing.NewSnapshot([]pricing.CartLineItem{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 2, SellerID: "A", Stock: 1},
	})
	return &Session{
		ID:         id,
		UserID:     "u1",
		Version:    1,
		Snapshot:   snap,
		Candidates: map[string][]voucher.Voucher{"platform:order": {{ID: "v1", Code: "X"}}},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	sess := sampleSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	require.ErrorIs(t, store.Create(ctx, sess), ErrVersionConflict)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)
	require.Equal(t, pricing.Money(2000), got.Snapshot.Stores[0].OriginalItemsTotal)
	require.Len(t, got.Candidates["platform:order"], 1)

	got.SelectedPaymentMethod = "cod"
	require.NoError(t, store.CompareAndSwap(ctx, got, 1))
	require.Equal(t, int64(2), got.Version)

	stale := sampleSession("s1")
	require.ErrorIs(t, store.CompareAndSwap(ctx, stale, 1), ErrVersionConflict)

	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "cod", got.SelectedPaymentMethod)

	require.NoError(t, store.Delete(ctx, "s1"))
	require.ErrorIs(t, store.Delete(ctx, "s1"), ErrSessionNotFound)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, store.CompareAndSwap(ctx, got, 2), ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.Now = func() time.Time { return now }
	require.NoError(t, store.Create(context.Background(), sampleSession("s1")))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(context.Background(), "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleSession("s1")))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.Snapshot.Stores[0].OriginalItemsTotal = 1
	got.Candidates["platform:order"][0].Code = "changed"

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, pricing.Money(2000), again.Snapshot.Stores[0].OriginalItemsTotal)
	require.Equal(t, "X", again.Candidates["platform:order"][0].Code)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, RedisStore{R: client, TTL: time.Minute, Prefix: "test:session:"})
}

func TestRedisStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := RedisStore{R: client, TTL: time.Minute}
	ctx := context.Background()
	sess := sampleSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	require.True(t, mr.Exists("checkout:session:s1"))
	require.Equal(t, time.Minute, mr.TTL("checkout:session:s1"))

	mr.FastForward(30 * time.Second)
	require.NoError(t, store.CompareAndSwap(ctx, sess, 1))
	require.Equal(t, time.Minute, mr.TTL("checkout:session:s1"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
