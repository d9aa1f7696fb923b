package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const portalSubmitWindow = 10 * time.Second

// Debouncer swallows repeated portal booking submissions, such as a double-clicked
// submit button, within a short window.
type Debouncer struct {
	rdb    goredis.Cmdable
	window time.Duration
}

func NewDebouncer(rdb goredis.Cmdable) *Debouncer {
	return &Debouncer{rdb: rdb, window: portalSubmitWindow}
}

// IsDebounced returns true if the same submission was seen inside the window, and
// otherwise records it and returns false.
func (d *Debouncer) IsDebounced(ctx context.Context, businessID uuid.UUID, fingerprint string) (bool, error) {
	args := goredis.SetArgs{TTL: d.window, Mode: "NX"}
	_, err := d.rdb.SetArgs(ctx, debounceKey(businessID, fingerprint), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set debounce: %w", err)
	}
	return false, nil
}

// Release forgets a submission so the same request can be retried inside the window.
func (d *Debouncer) Release(ctx context.Context, businessID uuid.UUID, fingerprint string) error {
	if err := d.rdb.Del(ctx, debounceKey(businessID, fingerprint)).Err(); err != nil {
		return fmt.Errorf("failed to release debounce: %w", err)
	}
	return nil
}

func debounceKey(businessID uuid.UUID, fingerprint string) string {
	return "debounce:portal:" + businessID.String() + ":" + fingerprint
}
