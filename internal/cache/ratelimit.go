package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type SetNXStore interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// RateLimiter allows one payment initiation per user per cooldown window.
type RateLimiter struct {
	store    SetNXStore
	cooldown time.Duration
	logger   *slog.Logger
}

func NewRateLimiter(store SetNXStore, cooldown time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{store: store, cooldown: cooldown, logger: logger}
}

func InitiationKey(userID int64) string {
	return fmt.Sprintf("payment_initiation_%d", userID)
}

// Allow fails open: a redis outage must not block payments.
func (l *RateLimiter) Allow(ctx context.Context, userID int64) bool {
	if l == nil || l.store == nil || l.cooldown <= 0 {
		return true
	}

	ok, err := l.store.SetNX(ctx, InitiationKey(userID), []byte("1"), l.cooldown)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "user_id", userID, "error", err)
		return true
	}
	return ok
}
