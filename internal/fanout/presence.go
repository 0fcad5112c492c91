package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hong-lou/chatrelay/internal/domain"
	"github.com/hong-lou/chatrelay/internal/metrics"
)

// Default liveness window. The heartbeat must fire strictly more than once
// per TTL; missing two consecutive refreshes lets the key expire, so a
// crashed process self-heals without explicit cleanup.
const (
	DefaultPresenceTTL       = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// PresenceTracker maintains (room, user) liveness markers with a TTL and
// broadcasts presence transitions as envelopes on the room channel.
type PresenceTracker struct {
	store     domain.PresenceStore
	publisher domain.Publisher
	clock     clockwork.Clock
	ttl       time.Duration
	interval  time.Duration
}

func NewPresenceTracker(store domain.PresenceStore, publisher domain.Publisher, clock clockwork.Clock, ttl, interval time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &PresenceTracker{
		store:     store,
		publisher: publisher,
		clock:     clock,
		ttl:       ttl,
		interval:  interval,
	}
}

func presenceKey(roomID, userID int64) string {
	return fmt.Sprintf("presence:room:%d:user:%d", roomID, userID)
}

// MarkOnline sets the liveness key and broadcasts the online transition.
func (p *PresenceTracker) MarkOnline(ctx context.Context, roomID, userID int64) error {
	if err := p.store.Set(ctx, presenceKey(roomID, userID), "1", p.ttl); err != nil {
		return fmt.Errorf("set presence key: %w", err)
	}
	p.publishTransition(ctx, roomID, userID, domain.PresenceOnline)
	return nil
}

// Heartbeat refreshes the liveness key's TTL.
func (p *PresenceTracker) Heartbeat(ctx context.Context, roomID, userID int64) error {
	if err := p.store.Set(ctx, presenceKey(roomID, userID), "1", p.ttl); err != nil {
		return fmt.Errorf("refresh presence key: %w", err)
	}
	metrics.PresenceHeartbeatsTotal.Inc()
	return nil
}

// MarkOffline deletes the liveness key and broadcasts the offline
// transition. Both steps are attempted even if the first fails; a leftover
// key still expires on its own.
func (p *PresenceTracker) MarkOffline(ctx context.Context, roomID, userID int64) error {
	err := p.store.Delete(ctx, presenceKey(roomID, userID))
	if err != nil {
		err = fmt.Errorf("delete presence key: %w", err)
	}
	p.publishTransition(ctx, roomID, userID, domain.PresenceOffline)
	return err
}

// StartHeartbeat spawns the periodic refresh task for a session and returns
// its stop function. Stop cancels the task and waits for it to exit.
func (p *PresenceTracker) StartHeartbeat(roomID, userID int64) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := p.clock.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				if err := p.Heartbeat(context.Background(), roomID, userID); err != nil {
					// Transient store failure; the next tick retries and the
					// TTL window tolerates a single miss.
					slog.Warn("presence heartbeat failed", "room_id", roomID, "user_id", userID, "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

func (p *PresenceTracker) publishTransition(ctx context.Context, roomID, userID int64, status string) {
	payload, err := domain.NewPresenceEnvelope(roomID, userID, status).Encode()
	if err != nil {
		slog.Error("encode presence envelope", "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, domain.RoomChannel(roomID), payload); err != nil {
		// Best-effort: a missed presence broadcast is corrected by the next
		// transition or by TTL expiry.
		slog.Warn("publish presence transition", "room_id", roomID, "user_id", userID, "status", status, "error", err)
		return
	}
	metrics.PubSubPublishedTotal.WithLabelValues(string(domain.KindPresence)).Inc()
}
