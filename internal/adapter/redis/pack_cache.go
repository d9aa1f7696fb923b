package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/metrics"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const packSnapshotRedisTTL = 5 * time.Minute

// storeSnapshotScript writes a snapshot only if the pack's invalidation counter still
// holds the value read before loading it.
var storeSnapshotScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current == ARGV[2] then
	return redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
end
return 0
`)

// SnapshotLoader is the source of truth behind the cache.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error)
}

// PackCache serves pack snapshots from memory, then Redis, then Postgres. Concurrent
// misses for the same pack share one load. Every invalidation bumps a per-pack counter
// in Redis, and a load that began under an older counter is not written back.
// Returned snapshots are shared and must not be modified.
type PackCache struct {
	rdb     goredis.Cmdable
	loader  SnapshotLoader
	mem     *memoryCache
	group   singleflight.Group
	metrics *metrics.CacheMetrics
}

var (
	_ domain.PackSnapshotSource   = (*PackCache)(nil)
	_ domain.PackCacheInvalidator = (*PackCache)(nil)
)

// NewPackCache builds the cache. m may be nil.
func NewPackCache(rdb goredis.Cmdable, loader SnapshotLoader, memTTL time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *PackCache {
	return &PackCache{
		rdb:     rdb,
		loader:  loader,
		mem:     newMemoryCache(memTTL, clock),
		metrics: m,
	}
}

// StartEvictionTimer periodically drops expired in-memory entries.
// Returns a stop function that should be deferred.
func (c *PackCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.mem.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired pack snapshots", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func (c *PackCache) GetSnapshot(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error) {
	if snap, ok := c.mem.get(packID); ok {
		c.hit("memory")
		return snap, nil
	}
	c.miss("memory")

	v, err, _ := c.group.Do(packID.String(), func() (any, error) {
		gen := c.mem.generation()
		redisGen, genOK := c.redisGeneration(ctx, packID)

		if snap, ok := c.getCached(ctx, packID); ok {
			c.hit("redis")
			c.mem.setIfCurrent(packID, snap, gen)
			return snap, nil
		}
		c.miss("redis")

		snap, err := c.loader.LoadSnapshot(ctx, packID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pack snapshot: %w", err)
		}

		if c.mem.setIfCurrent(packID, snap, gen) && genOK {
			c.writeCache(ctx, snap, redisGen)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PackSnapshot), nil
}

// InvalidatePack drops the snapshot here and in Redis, then tells the other instances
// to drop their in-memory copies.
func (c *PackCache) InvalidatePack(ctx context.Context, packID uuid.UUID) error {
	c.evictLocal(packID, "local")

	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, packGenerationKey(packID))
		pipe.Del(ctx, packSnapshotKey(packID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cached pack snapshot: %w", err)
	}
	if err := c.rdb.Publish(ctx, packInvalidationChannel, packID.String()).Err(); err != nil {
		return fmt.Errorf("failed to publish pack invalidation: %w", err)
	}
	return nil
}

func (c *PackCache) evictLocal(packID uuid.UUID, origin string) {
	c.mem.invalidate(packID)
	if c.metrics != nil {
		c.metrics.Invalidations.WithLabelValues(origin).Inc()
	}
}

// redisGeneration reads the pack's invalidation counter. ok is false when Redis cannot
// answer, in which case the loaded snapshot is kept out of Redis.
func (c *PackCache) redisGeneration(ctx context.Context, packID uuid.UUID) (string, bool) {
	gen, err := c.rdb.Get(ctx, packGenerationKey(packID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "0", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

func (c *PackCache) writeCache(ctx context.Context, snap *domain.PackSnapshot, gen string) {
	encoded, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("Failed to marshal pack snapshot for Redis cache", "pack_id", snap.Pack.ID, "error", err)
		return
	}

	keys := []string{packSnapshotKey(snap.Pack.ID), packGenerationKey(snap.Pack.ID)}
	err = storeSnapshotScript.Run(ctx, c.rdb, keys, encoded, gen, packSnapshotRedisTTL.Milliseconds()).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		slog.Warn("Failed to populate Redis pack cache", "pack_id", snap.Pack.ID, "error", err)
	}
}

func (c *PackCache) getCached(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, bool) {
	data, err := c.rdb.Get(ctx, packSnapshotKey(packID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis pack cache GET failed", "pack_id", packID, "error", err)
		}
		return nil, false
	}

	var snap domain.PackSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Failed to unmarshal cached pack snapshot", "pack_id", packID, "error", err)
		return nil, false
	}
	return &snap, true
}

func (c *PackCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (c *PackCache) miss(layer string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(layer).Inc()
	}
}

func packSnapshotKey(packID uuid.UUID) string {
	return "pack:snapshot:" + packID.String()
}

func packGenerationKey(packID uuid.UUID) string {
	return "pack:generation:" + packID.String()
}

// memoryCache is the in-process layer with TTL expiry. Every invalidation bumps gen so a
// load that started before it cannot store what it read.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
	gen     uint64
}

type memoryCacheEntry struct {
	snap      *domain.PackSnapshot
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[uuid.UUID]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(packID uuid.UUID) (*domain.PackSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[packID]
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.snap, true
}

func (c *memoryCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// setIfCurrent stores snap unless an invalidation happened since gen was read.
func (c *memoryCache) setIfCurrent(packID uuid.UUID, snap *domain.PackSnapshot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.entries[packID] = memoryCacheEntry{snap: snap, expiresAt: c.clock.Now().Add(c.ttl)}
	return true
}

func (c *memoryCache) invalidate(packID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, packID)
	c.gen++
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}
