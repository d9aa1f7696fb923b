package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/retry"
)

// NewClient parses redisURL, installs hooks in order and pings until Redis answers
// or the startup retry policy gives up.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	for _, h := range hooks {
		client.AddHook(h)
	}

	p := retry.StartupPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not ready, retrying", "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.DoVoid(ctx, p, retry.UnlessCanceled, ping); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}
