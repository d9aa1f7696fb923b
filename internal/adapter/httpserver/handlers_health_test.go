package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{Name: "postgres", Check: healthOK}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
		{
			name:       "postgres down",
			checks:     []HealthCheck{{Name: "postgres", Check: healthErr("database unreachable")}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"status":"unhealthy"`, `"failed_check":"postgres"`, `"error":"database unreachable"`},
		},
		{
			name:       "redis down",
			checks:     []HealthCheck{{Name: "postgres", Check: healthOK}, {Name: "redis", Check: healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"failed_check":"redis"`},
		},
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
	}
	for _, tt := range tests {
		for _, path := range []string{"/health/startup", "/health/ready"} {
			t.Run(tt.name+" "+path, func(t *testing.T) {
				srv := newTestServer(t, &mockAppService{}, withHealthChecks(tt.checks...))

				rec := doJSON(t, srv, http.MethodGet, path, nil, nil)

				assert.Equal(t, tt.wantStatus, rec.Code)
				for _, want := range tt.wantBody {
					assert.Contains(t, rec.Body.String(), want)
				}
			})
		}
	}
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{Name: "postgres", Check: healthErr("down")}))

	rec := doJSON(t, srv, http.MethodGet, "/health/live", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"uptime"`)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doJSON(t, srv, http.MethodGet, "/version", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"booking-os"`)
	assert.Contains(t, rec.Body.String(), `"go_version"`)
}

func TestMetricsRoute(t *testing.T) {
	t.Run("served when configured", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("booking_os_up 1\n"))
		})
		srv := newTestServer(t, &mockAppService{}, withMetricsHandler(handler))

		rec := doJSON(t, srv, http.MethodGet, "/metrics", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "booking_os_up 1")
	})

	t.Run("absent otherwise", func(t *testing.T) {
		srv := newTestServer(t, &mockAppService{})

		rec := doJSON(t, srv, http.MethodGet, "/metrics", nil, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
