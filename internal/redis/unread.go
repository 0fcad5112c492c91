package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// UnreadCounters is the per-(room, user) unread message cache: a plain
// counter bumped on publish and reset on mark-read. The relational store
// remains the source of truth for history.
type UnreadCounters struct {
	rdb *goredis.Client
}

func NewUnreadCounters(rdb *goredis.Client) *UnreadCounters {
	return &UnreadCounters{rdb: rdb}
}

func unreadKey(roomID, userID int64) string {
	return fmt.Sprintf("unread:room:%d:user:%d", roomID, userID)
}

// Incr bumps the unread counter for one recipient.
func (u *UnreadCounters) Incr(ctx context.Context, roomID, userID int64) error {
	return u.rdb.Incr(ctx, unreadKey(roomID, userID)).Err()
}

// Reset clears the counter after the user marks the room read.
func (u *UnreadCounters) Reset(ctx context.Context, roomID, userID int64) error {
	return u.rdb.Del(ctx, unreadKey(roomID, userID)).Err()
}

// Get returns the current counter; a missing key reads as zero.
func (u *UnreadCounters) Get(ctx context.Context, roomID, userID int64) (int64, error) {
	n, err := u.rdb.Get(ctx, unreadKey(roomID, userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
