package ctxkeys

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	AccessTokenKey contextKey = "access_token"
)

// UserID returns the authenticated caller, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(AccessTokenKey).(string)
	return token
}

func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, token)
}
