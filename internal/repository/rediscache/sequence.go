// Package rediscache decorates repositories with a Redis read-through
// cache. Only immutable data is cached.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a non-positive TTL is configured.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "sequence-engine:sequence:"

// SequenceCache caches sequence definitions as JSON. Redis failures fall
// through to the underlying repository.
type SequenceCache struct {
	next sequence.SequenceRepository
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *logger.Logger
}

// NewSequenceCache wraps next with a cache stored in rdb.
func NewSequenceCache(next sequence.SequenceRepository, rdb redis.Cmdable, ttl time.Duration) *SequenceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SequenceCache{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  logger.Default().With("component", "sequence_cache"),
	}
}

func (c *SequenceCache) Get(ctx context.Context, id string) (*domain.Sequence, error) {
	key := keyPrefix + id

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var seq domain.Sequence
		if jerr := json.Unmarshal(raw, &seq); jerr == nil {
			return &seq, nil
		}
		c.log.Warn("dropping undecodable cache entry", "sequence_id", id)
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", "sequence_id", id, "error", err)
	}

	seq, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(seq); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("cache write failed", "sequence_id", id, "error", err)
		}
	}
	return seq, nil
}

// Invalidate removes a cached definition.
func (c *SequenceCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, keyPrefix+id).Err()
}
