package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey      ctxKey = "userID"
	ContextClientIPKey  ctxKey = "clientIP"
	ContextUserAgentKey ctxKey = "userAgent"
)

func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if userID, ok := ctx.Value(ContextUserKey).(int64); ok {
		return userID
	}
	return 0
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

// ClientInfo is the caller metadata stored on payments and audit rows.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	ctx = context.WithValue(ctx, ContextClientIPKey, info.IPAddress)
	return context.WithValue(ctx, ContextUserAgentKey, info.UserAgent)
}

func ClientInfoFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	ip, _ := ctx.Value(ContextClientIPKey).(string)
	ua, _ := ctx.Value(ContextUserAgentKey).(string)
	return ClientInfo{IPAddress: ip, UserAgent: ua}
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
