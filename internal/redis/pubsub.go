package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hong-lou/chatrelay/internal/domain"
)

// PubSub implements domain.Publisher and domain.PatternSubscriber over
// Redis pub/sub.
type PubSub struct {
	rdb *goredis.Client
}

func NewPubSub(rdb *goredis.Client) *PubSub {
	return &PubSub{rdb: rdb}
}

// Publish pushes an encoded payload onto a channel. Publish order on one
// channel is preserved by Redis; nothing downstream reorders it.
func (p *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rdb.Publish(ctx, channel, payload).Err()
}

// PatternSubscribe opens a PSUBSCRIBE covering pattern and confirms the
// subscription before returning.
func (p *PubSub) PatternSubscribe(ctx context.Context, pattern string) (domain.PatternSubscription, error) {
	sub := p.rdb.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &patternSubscription{sub: sub}, nil
}

type patternSubscription struct {
	sub *goredis.PubSub
}

// Poll returns the next pattern delivery, or (nil, nil) when timeout
// elapses with nothing pending. Subscription-management frames are skipped
// the same way an empty poll is.
func (s *patternSubscription) Poll(ctx context.Context, timeout time.Duration) (*domain.PubSubMessage, error) {
	raw, err := s.sub.ReceiveTimeout(ctx, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, err
	}

	switch msg := raw.(type) {
	case *goredis.Message:
		return &domain.PubSubMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}, nil
	default:
		// *goredis.Subscription, *goredis.Pong
		return nil, nil
	}
}

func (s *patternSubscription) Close() error {
	return s.sub.Close()
}
