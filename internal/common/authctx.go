package common

import (
	"context"
	"strings"
)

type ctxKey string

const userIDKey ctxKey = "auth/user-id"

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// SessionContext identifies the caller of a checkout operation. It is passed
// explicitly into every pricing and checkout call.
type SessionContext struct {
	UserID string
}

// Valid reports whether the context names a user.
func (sc SessionContext) Valid() bool {
	return strings.TrimSpace(sc.UserID) != ""
}

// SessionFromContext builds a SessionContext from the authenticated request context.
func SessionFromContext(ctx context.Context) (SessionContext, bool) {
	id, ok := UserID(ctx)
	if !ok || strings.TrimSpace(id) == "" {
		return SessionContext{}, false
	}
	return SessionContext{UserID: id}, true
}
