package redis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const packInvalidationChannel = "pack:invalidate"

// PackInvalidationSubscriber drops in-memory snapshots when another instance changes a pack.
type PackInvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *PackCache
}

func NewPackInvalidationSubscriber(rdb *goredis.Client, cache *PackCache) *PackInvalidationSubscriber {
	return &PackInvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is done or the subscription closes.
func (s *PackInvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, packInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			s.handleInvalidation(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *PackInvalidationSubscriber) handleInvalidation(payload string) {
	packID, err := uuid.Parse(payload)
	if err != nil {
		slog.Warn("Ignoring malformed pack invalidation message", "payload", payload, "error", err)
		return
	}

	s.cache.evictLocal(packID, "pubsub")
	slog.Debug("Pack cache invalidated via pub/sub", "pack_id", packID)
}
