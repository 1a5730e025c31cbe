package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wabot:session:"

// RedisStore keeps conversation state in Redis so several webhook instances
// can share it.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore; ttl <= 0 defaults to 30 minutes.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Get returns the current state for phone, or nil.
func (s *RedisStore) Get(ctx context.Context, phone string) (*State, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+phone).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &st, nil
}

// Set replaces the state for phone and refreshes its TTL.
func (s *RedisStore) Set(ctx context.Context, phone string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+phone, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear removes the state for phone.
func (s *RedisStore) Clear(ctx context.Context, phone string) error {
	if err := s.rdb.Del(ctx, keyPrefix+phone).Err(); err != nil {
		return fmt.Errorf("session del: %w", err)
	}
	return nil
}
