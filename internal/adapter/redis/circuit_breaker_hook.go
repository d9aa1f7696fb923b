package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/metrics"
)

const (
	breakerMinRequests  = 5
	breakerFailureRatio = 0.6
	breakerOpenTimeout  = 30 * time.Second
)

// CircuitBreakerHook trips after sustained Redis failures and then fails commands fast
// until the open timeout passes. Callers treat Redis as a cache, so failing fast lets
// them fall through to Postgres instead of stacking up on dead connections.
type CircuitBreakerHook struct {
	cb      *gobreaker.CircuitBreaker[struct{}]
	metrics *metrics.RedisMetrics
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook builds the hook. m may be nil.
func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	return newCircuitBreakerHook(m, breakerMinRequests, breakerOpenTimeout)
}

func newCircuitBreakerHook(m *metrics.RedisMetrics, minRequests uint32, openTimeout time.Duration) *CircuitBreakerHook {
	h := &CircuitBreakerHook{metrics: m}
	h.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= breakerFailureRatio
		},
		IsSuccessful:  isBreakerSuccess,
		OnStateChange: h.onStateChange,
	})
	return h
}

// isBreakerSuccess keeps cache misses and caller cancellations from counting against Redis.
func isBreakerSuccess(err error) bool {
	return err == nil || errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled)
}

func (h *CircuitBreakerHook) onStateChange(name string, from, to gobreaker.State) {
	slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
	if h.metrics == nil {
		return
	}
	h.metrics.BreakerChanges.WithLabelValues(to.String()).Inc()
	h.metrics.BreakerState.Set(stateValue(to))
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		_, err := h.cb.Execute(func() (struct{}, error) {
			var dialErr error
			conn, dialErr = next(ctx, network, addr)
			return struct{}{}, dialErr
		})
		if err != nil {
			return nil, breakerError(err)
		}
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		_, err := h.cb.Execute(func() (struct{}, error) {
			return struct{}{}, next(ctx, cmd)
		})
		return breakerError(err)
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		_, err := h.cb.Execute(func() (struct{}, error) {
			return struct{}{}, next(ctx, cmds)
		})
		return breakerError(err)
	}
}

// breakerError wraps rejections by the breaker and passes command errors through
// untouched, so redis.Nil still compares equal.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("redis circuit breaker open: %w", err)
	}
	return err
}

// State returns the breaker state for health checks and tests.
func (h *CircuitBreakerHook) State() gobreaker.State {
	return h.cb.State()
}

// Counts returns the breaker's counters for the current interval.
func (h *CircuitBreakerHook) Counts() gobreaker.Counts {
	return h.cb.Counts()
}
