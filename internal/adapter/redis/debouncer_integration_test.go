package redis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDebounced(t *testing.T) {
	client := setupTestClient(t)
	debouncer := NewDebouncer(client)
	ctx := context.Background()

	businessID := uuid.New()

	debounced, err := debouncer.IsDebounced(ctx, businessID, "ana@example.com|2026-03-02T10:00")
	require.NoError(t, err)
	assert.False(t, debounced)

	debounced, err = debouncer.IsDebounced(ctx, businessID, "ana@example.com|2026-03-02T10:00")
	require.NoError(t, err)
	assert.True(t, debounced)

	debounced, err = debouncer.IsDebounced(ctx, businessID, "ben@example.com|2026-03-02T10:00")
	require.NoError(t, err)
	assert.False(t, debounced)

	debounced, err = debouncer.IsDebounced(ctx, uuid.New(), "ana@example.com|2026-03-02T10:00")
	require.NoError(t, err)
	assert.False(t, debounced, "Other businesses have their own window")
}

func TestIsDebounced_WindowExpires(t *testing.T) {
	client := setupTestClient(t)
	debouncer := NewDebouncer(client)
	ctx := context.Background()

	businessID := uuid.New()
	_, err := debouncer.IsDebounced(ctx, businessID, "fp")
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, debounceKey(businessID, "fp")).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, portalSubmitWindow)
}

func TestRelease_AllowsResubmission(t *testing.T) {
	client := setupTestClient(t)
	debouncer := NewDebouncer(client)
	ctx := context.Background()

	businessID := uuid.New()
	_, err := debouncer.IsDebounced(ctx, businessID, "fp")
	require.NoError(t, err)

	require.NoError(t, debouncer.Release(ctx, businessID, "fp"))
	require.NoError(t, debouncer.Release(ctx, businessID, "missing"), "Releasing an unknown submission is a no-op")

	debounced, err := debouncer.IsDebounced(ctx, businessID, "fp")
	require.NoError(t, err)
	assert.False(t, debounced)
}
