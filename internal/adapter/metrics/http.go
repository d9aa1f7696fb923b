package metrics

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   *prometheus.GaugeVec
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds, by surface and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"surface", "method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests, by surface and route.",
		}, []string{"surface", "method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed, by surface.",
		}, []string{"surface"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware returns an Echo middleware that records HTTP metrics.
// It skips /metrics and /health/* endpoints.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeLabel(c.Path())
			if route == "/metrics" || strings.HasPrefix(route, "/health/") {
				return next(c)
			}
			surface := Surface(route)

			inFlight := m.InFlightGauge.WithLabelValues(surface)
			inFlight.Inc()
			defer inFlight.Dec()

			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(c.Response().Status)
				m.RequestDuration.WithLabelValues(surface, c.Request().Method, route, status).Observe(v)
				m.RequestsTotal.WithLabelValues(surface, c.Request().Method, route, status).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			return err
		}
	}
}

// Surface names the audience a route serves: the public portal, business staff,
// the platform console, sign-in, or first-run setup.
func Surface(route string) string {
	switch {
	case strings.HasPrefix(route, "/portal/"):
		return "portal"
	case strings.HasPrefix(route, "/api/console/"):
		return "console"
	case route == "/api/setup":
		return "setup"
	case strings.HasPrefix(route, "/auth/"), route == "/api/me":
		return "auth"
	case strings.HasPrefix(route, "/api/"):
		return "staff"
	default:
		return "other"
	}
}

// routeLabel keeps unknown paths from minting a series per URL.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
