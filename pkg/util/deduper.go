package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper suppresses duplicate sends after a lease-expiry redelivery:
// the worker marks an envelope delivered in Redis and skips the provider
// call when the marker is already present. Redis being down never blocks
// delivery; at-least-once beats not-at-all.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func deliveredKey(envelopeID string) string {
	return fmt.Sprintf("notify:delivered:%s", envelopeID)
}

// MarkDelivered records a delivered marker after a successful send.
func (d *Deduper) MarkDelivered(ctx context.Context, envelopeID string) {
	if err := d.rdb.Set(ctx, deliveredKey(envelopeID), 1, d.ttl).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to set delivered marker",
			zap.String("envelope_id", envelopeID),
			zap.Error(err),
		)
	}
}

// AlreadyDelivered reports whether a delivered marker exists.
// Redis 挂了？为了安全：当 redis 不可用时按未投递处理，允许重发
func (d *Deduper) AlreadyDelivered(ctx context.Context, envelopeID string) bool {
	n, err := d.rdb.Exists(ctx, deliveredKey(envelopeID)).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing delivery",
				zap.String("envelope_id", envelopeID),
				zap.Error(err),
			)
		}
		return false
	}

	if n > 0 && d.logger != nil {
		d.logger.Info("Skipping duplicate delivery",
			zap.String("envelope_id", envelopeID),
		)
	}
	return n > 0
}
