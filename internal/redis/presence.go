package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PresenceStore implements domain.PresenceStore on plain Redis keys with a
// TTL. Each Set is independently idempotent, so retries need no
// coordination.
type PresenceStore struct {
	rdb *goredis.Client
}

func NewPresenceStore(rdb *goredis.Client) *PresenceStore {
	return &PresenceStore{rdb: rdb}
}

func (s *PresenceStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *PresenceStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
