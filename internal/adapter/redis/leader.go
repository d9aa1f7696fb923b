package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const (
	rolloutLeaderKey = "rollout:leader"
	leaderLeaseTTL   = 30 * time.Second
)

var ErrLeaseLost = errors.New("leader lease lost")

// Compare-and-act scripts so an instance never extends or deletes a lease it no longer holds.
var (
	renewLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
	releaseLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// LeaderElector is a SET NX lease in Redis. The holder must renew it well inside the TTL.
type LeaderElector struct {
	rdb        goredis.Cmdable
	instanceID string
	key        string
	ttl        time.Duration
}

var _ domain.LeaderLease = (*LeaderElector)(nil)

// NewLeaderElector creates the lease used by the rollout ticker. instanceID must be
// unique per process.
func NewLeaderElector(rdb goredis.Cmdable, instanceID string) *LeaderElector {
	return &LeaderElector{
		rdb:        rdb,
		instanceID: instanceID,
		key:        rolloutLeaderKey,
		ttl:        leaderLeaseTTL,
	}
}

// TryAcquire returns true when this instance now holds the lease.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lease: %w", err)
	}
	return ok, nil
}

// Renew extends the lease, or returns ErrLeaseLost when another instance holds it.
func (l *LeaderElector) Renew(ctx context.Context) error {
	n, err := renewLeaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew leader lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release gives up the lease if this instance still holds it.
func (l *LeaderElector) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release leader lease: %w", err)
	}
	return nil
}
