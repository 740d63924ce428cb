package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	markSending = "sending"
	markSent    = "sent"
)

// claimTTL bounds how long a crashed worker's in-flight claim blocks a retry.
const claimTTL = time.Minute

var forgetScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`)

// RedisReplayGuard records per-endpoint delivery state in Redis. A key moves
// from "sending" to "sent"; only a "sending" claim can be forgotten, so a
// confirmed delivery is never sent twice within its retention.
type RedisReplayGuard struct {
	Client *redis.Client
}

// Claim marks the delivery in flight. It reports false when another attempt
// holds the claim or the delivery was already confirmed.
func (g RedisReplayGuard) Claim(ctx context.Context, key string) (bool, error) {
	if g.Client == nil {
		return true, nil
	}
	return g.Client.SetNX(ctx, key, markSending, claimTTL).Result()
}

// Confirm records a successful delivery for ttl.
func (g RedisReplayGuard) Confirm(ctx context.Context, key string, ttl time.Duration) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Set(ctx, key, markSent, ttl).Err()
}

// Forget drops an in-flight claim so the next retry may send again.
func (g RedisReplayGuard) Forget(ctx context.Context, key string) error {
	if g.Client == nil {
		return nil
	}
	return forgetScript.Run(ctx, g.Client, []string{key}, markSending).Err()
}
