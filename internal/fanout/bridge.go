package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hong-lou/chatrelay/internal/domain"
	"github.com/hong-lou/chatrelay/internal/metrics"
)

// pollTimeout bounds each upstream poll so the consumer loop observes
// shutdown promptly even when the channels are idle. It is not an
// application-level timeout.
const pollTimeout = time.Second

// Bridge demultiplexes one pattern subscription covering every room channel
// into the local per-room subscriber sets. Exactly one consumer loop runs
// per process regardless of room count; that is the scalability property
// the whole subsystem hangs on.
//
// The bridge is constructed and owned by process startup, not looked up
// globally.
type Bridge struct {
	subscriber domain.PatternSubscriber
	registry   *Registry

	mu      sync.Mutex
	sub     domain.PatternSubscription
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewBridge(subscriber domain.PatternSubscriber, registry *Registry) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		registry:   registry,
	}
}

// Start opens the pattern subscription and spawns the consumer loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	sub, err := b.subscriber.PatternSubscribe(ctx, domain.RoomChannelPattern)
	if err != nil {
		return fmt.Errorf("pattern subscribe %q: %w", domain.RoomChannelPattern, err)
	}

	b.sub = sub
	b.done = make(chan struct{})
	b.started = true
	b.wg.Add(1)
	go b.consume(sub, b.done)

	slog.Info("fanout bridge started", "pattern", domain.RoomChannelPattern)
	return nil
}

// Stop closes the upstream subscription and waits for the consumer loop to
// exit. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	close(b.done)
	if err := b.sub.Close(); err != nil {
		slog.Warn("closing pattern subscription", "error", err)
	}
	b.mu.Unlock()

	b.wg.Wait()
	slog.Info("fanout bridge stopped")
}

func (b *Bridge) consume(sub domain.PatternSubscription, done chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		msg, err := sub.Poll(context.Background(), pollTimeout)
		if err != nil {
			// Transient transport failure: degrade to missed deliveries for
			// this interval rather than crashing the process.
			metrics.PubSubReceiveErrorsTotal.Inc()
			select {
			case <-done:
				return
			default:
			}
			slog.Debug("pubsub poll failed", "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		roomID, ok := domain.ParseRoomChannel(msg.Channel)
		if !ok {
			metrics.PubSubMalformedChannelsTotal.Inc()
			continue
		}

		conns := b.registry.Subscribers(roomID)
		if len(conns) == 0 {
			// No local subscribers; another process hosts this room's clients.
			continue
		}

		for _, conn := range conns {
			conn.Enqueue(msg.Payload)
		}
		metrics.FanoutMessagesTotal.Add(float64(len(conns)))
		slog.Debug("fanout delivered", "room_id", roomID, "subscribers", len(conns))
	}
}
