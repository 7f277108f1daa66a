package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IngestGuard suppresses duplicate pipeline work across overlapping passes.
// It sits above the persistence lookup: the upsert stays idempotent without
// it, the guard just avoids re-decoding and re-saving a message two
// concurrent passes both fetched.
type IngestGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIngestGuard(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *IngestGuard {
	return &IngestGuard{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire the processing slot for one message,
// identified by its verification hash within an account.
// returns true if this is the FIRST pass to reach the message
// returns false if another pass already claimed it within the TTL
func (g *IngestGuard) AcquireOnce(ctx context.Context, accountEmail, verificationHash string) bool {
	key := fmt.Sprintf("ingest:%s:%s", accountEmail, verificationHash)

	ok, err := g.rdb.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		// Redis 挂了？为了安全：当 redis 不可用时，不阻止处理，返回 true
		if g.logger != nil {
			g.logger.Warn("Redis ingest guard check failed, allowing processing",
				zap.String("account", accountEmail),
				zap.String("verification_hash", verificationHash),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && g.logger != nil {
		g.logger.Info("Skipped message claimed by another pass",
			zap.String("account", accountEmail),
			zap.String("dedup_key", key),
		)
	}

	return ok
}
