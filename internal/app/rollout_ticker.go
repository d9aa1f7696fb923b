package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const leaseRefreshInterval = 10 * time.Second

type rolloutAdvancer interface {
	AdvanceDue(ctx context.Context) (int, error)
}

// RolloutTicker auto-advances staged rollouts on whichever instance holds the leader lease.
type RolloutTicker struct {
	lease    domain.LeaderLease
	advancer rolloutAdvancer
	interval time.Duration
	clock    clockwork.Clock

	leader bool
}

func NewRolloutTicker(lease domain.LeaderLease, advancer rolloutAdvancer, interval time.Duration, clock clockwork.Clock) *RolloutTicker {
	return &RolloutTicker{
		lease:    lease,
		advancer: advancer,
		interval: interval,
		clock:    clock,
	}
}

// Run blocks until ctx is cancelled, then gives up the lease if it held it.
func (t *RolloutTicker) Run(ctx context.Context) {
	leaseTicker := t.clock.NewTicker(leaseRefreshInterval)
	defer leaseTicker.Stop()
	advanceTicker := t.clock.NewTicker(t.interval)
	defer advanceTicker.Stop()

	t.refreshLease(ctx)

	for {
		select {
		case <-ctx.Done():
			t.release()
			slog.Info("Rollout ticker stopped")
			return
		case <-leaseTicker.Chan():
			t.refreshLease(ctx)
		case <-advanceTicker.Chan():
			t.tick(ctx)
		}
	}
}

func (t *RolloutTicker) refreshLease(ctx context.Context) {
	if t.leader {
		if err := t.lease.Renew(ctx); err != nil {
			slog.WarnContext(ctx, "Rollout leadership lost", "error", err)
			t.leader = false
		}
		return
	}

	acquired, err := t.lease.TryAcquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to acquire rollout leadership", "error", err)
		return
	}
	if acquired {
		slog.InfoContext(ctx, "Acquired rollout leadership")
		t.leader = true
	}
}

func (t *RolloutTicker) tick(ctx context.Context) {
	if !t.leader {
		return
	}
	n, err := t.advancer.AdvanceDue(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Rollout auto-advance failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Rollouts auto-advanced", "count", n)
	}
}

func (t *RolloutTicker) release() {
	if !t.leader {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.lease.Release(ctx); err != nil {
		slog.Warn("Failed to release rollout leadership", "error", err)
	}
	t.leader = false
}
