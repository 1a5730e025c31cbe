package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "wabot:sent:"

// Claimer reserves one delivery per reminder occurrence, keyed by the
// occurrence's local target date.
type Claimer interface {
	// Claim returns false when the occurrence is already taken.
	Claim(ctx context.Context, reminderID int64, date string) (bool, error)
	Release(ctx context.Context, reminderID int64, date string) error
}

// NopClaimer always grants the claim.
type NopClaimer struct{}

func (NopClaimer) Claim(context.Context, int64, string) (bool, error) { return true, nil }
func (NopClaimer) Release(context.Context, int64, string) error       { return nil }

// RedisClaimer claims occurrences with SETNX so a restart or a second
// instance does not deliver the same reminder twice on one day.
type RedisClaimer struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClaimer builds a claimer; ttl <= 0 keeps claims for 26 hours,
// enough to outlive a local day in any zone.
func NewRedisClaimer(rdb *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 26 * time.Hour
	}
	return &RedisClaimer{rdb: rdb, ttl: ttl}
}

func claimKey(reminderID int64, date string) string {
	return claimPrefix + strconv.FormatInt(reminderID, 10) + ":" + date
}

func (c *RedisClaimer) Claim(ctx context.Context, reminderID int64, date string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, claimKey(reminderID, date), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim setnx: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, reminderID int64, date string) error {
	if err := c.rdb.Del(ctx, claimKey(reminderID, date)).Err(); err != nil {
		return fmt.Errorf("claim del: %w", err)
	}
	return nil
}
