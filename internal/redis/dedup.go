package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records event IDs with a time-bounded marker so at-least-once
// deliveries collapse to a single business handling. The marker is written
// before any side effect: SET NX is the atomic check-and-record.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewDeduper creates a dedup filter with the given marker lifetime
func NewDeduper(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Deduper {
	return &Deduper{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(eventID string) string {
	return fmt.Sprintf("evt:%s", eventID)
}

// SeenAndRecord atomically checks whether eventID was already handled within
// the marker window and records it if not. Returns true for a duplicate.
func (d *Deduper) SeenAndRecord(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.SetNX(ctx, dedupKey(eventID), "1", d.ttl).Result()
	if err != nil {
		return false, backendErr("recording event marker", err)
	}
	return !set, nil
}

// Unrecord drops the marker so a delivery whose handling failed can be retried
func (d *Deduper) Unrecord(ctx context.Context, eventID string) {
	if err := d.client.Del(ctx, dedupKey(eventID)).Err(); err != nil {
		d.logger.Warn("failed to drop event marker", "event_id", eventID, "error", err)
	}
}
