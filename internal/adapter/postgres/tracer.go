package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer implements pgx.QueryTracer and records query latency and failures.
type MetricsTracer struct {
	m *metrics.DBMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	kind  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{start: time.Now(), kind: statementKind(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.m.QueryDuration.WithLabelValues(qctx.kind).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		t.m.Errors.WithLabelValues(qctx.kind).Inc()
	}
}

// statementKind keeps label cardinality low by using the leading SQL keyword.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	switch kind := strings.ToLower(fields[0]); kind {
	case "select", "insert", "update", "delete", "with", "begin", "commit", "rollback":
		return kind
	default:
		return "other"
	}
}
