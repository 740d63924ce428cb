package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	window := 2 * time.Second
	limiter := SlidingWindow{Client: client, Prefix: "test:", Window: window, Max: 2}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "voucher:user:u1")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if d.Remaining != 2-(i+1) {
			t.Fatalf("unexpected remaining: %d", d.Remaining)
		}
	}

	d, err := limiter.Allow(ctx, "voucher:user:u1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected third request to be rejected, got %+v", d)
	}

	other, err := limiter.Allow(ctx, "voucher:user:u2")
	if err != nil || !other.Allowed {
		t.Fatalf("expected independent key to be allowed: %+v %v", other, err)
	}

	mr.FastForward(window)

	d, err = limiter.Allow(ctx, "voucher:user:u1")
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestSlidingWindowDisabled(t *testing.T) {
	d, err := SlidingWindow{}.Allow(context.Background(), "k")
	if err != nil || !d.Allowed {
		t.Fatalf("expected unconfigured limiter to allow: %+v %v", d, err)
	}
}
