package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// RefreshLimiter rate-limits AI insight refreshes per learner with a
// SET NX EX key. Failing open would burn provider quota, so Redis errors
// count as "not allowed".
type RefreshLimiter struct {
	log      *logger.Logger
	rdb      *goredis.Client
	interval time.Duration
}

func NewRefreshLimiter(rdb *goredis.Client, log *logger.Logger) *RefreshLimiter {
	return &RefreshLimiter{
		log:      log.With("service", "RefreshLimiter"),
		rdb:      rdb,
		interval: envutil.Duration("INSIGHT_REFRESH_INTERVAL", time.Hour),
	}
}

func refreshKey(learnerID uuid.UUID) string {
	return fmt.Sprintf("skillgraph:insight_refresh:%s", learnerID)
}

// Allow reports whether a refresh may run now for this learner.
func (l *RefreshLimiter) Allow(ctx context.Context, learnerID uuid.UUID) bool {
	ok, err := l.rdb.SetNX(ctx, refreshKey(learnerID), time.Now().UTC().Format(time.RFC3339), l.interval).Result()
	if err != nil {
		l.log.Warn("refresh limiter check failed", "learner_id", learnerID, "error", err)
		return false
	}
	return ok
}
