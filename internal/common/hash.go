package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IdempotencyHeader carries the key collaborators use to deduplicate writes.
const IdempotencyHeader = "Idempotency-Key"

// Digest hashes the parts joined by "|" and returns lowercase hex. Equal
// parts always give the same digest so it can serve as a dedupe key.
func Digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type outboundKey struct{}

// WithOutboundKey marks writes sent to collaborators under ctx with key, which
// makes them safe to retry.
func WithOutboundKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, outboundKey{}, strings.TrimSpace(key))
}

// OutboundKey returns the key set by WithOutboundKey.
func OutboundKey(ctx context.Context) string {
	key, _ := ctx.Value(outboundKey{}).(string)
	return key
}
