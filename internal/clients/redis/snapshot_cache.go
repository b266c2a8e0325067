package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// SnapshotCache is a read-through cache for assembled graph snapshots.
// Entries are invalidated on every graph mutation, so the TTL only bounds
// staleness after missed invalidations.
type SnapshotCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSnapshotCache(rdb *goredis.Client, log *logger.Logger) *SnapshotCache {
	return &SnapshotCache{
		log: log.With("service", "SnapshotCache"),
		rdb: rdb,
		ttl: envutil.Duration("SNAPSHOT_CACHE_TTL", 5*time.Minute),
	}
}

func snapshotKey(learnerID uuid.UUID) string {
	return fmt.Sprintf("skillgraph:snapshot:%s", learnerID)
}

// Get unmarshals a cached snapshot into out. Returns false on miss.
func (c *SnapshotCache) Get(ctx context.Context, learnerID uuid.UUID, out any) (bool, error) {
	raw, err := c.rdb.Get(ctx, snapshotKey(learnerID)).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Stale shape after a deploy; treat as a miss.
		_ = c.rdb.Del(ctx, snapshotKey(learnerID)).Err()
		return false, nil
	}
	return true, nil
}

func (c *SnapshotCache) Set(ctx context.Context, learnerID uuid.UUID, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("snapshot marshal failed", "learner_id", learnerID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(learnerID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("snapshot cache write failed", "learner_id", learnerID, "error", err)
	}
}

// Invalidate drops the cached snapshot. Failures are logged, not returned;
// the TTL bounds how long a stale entry can survive.
func (c *SnapshotCache) Invalidate(ctx context.Context, learnerID uuid.UUID) {
	if err := c.rdb.Del(ctx, snapshotKey(learnerID)).Err(); err != nil {
		c.log.Warn("snapshot invalidation failed", "learner_id", learnerID, "error", err)
	}
}
