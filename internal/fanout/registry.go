package fanout

import (
	"sync"

	"github.com/hong-lou/chatrelay/internal/metrics"
)

// Registry maps room ids to the set of local connections subscribed to
// them. It holds non-owning references: a connection appears here exactly
// while its delivery goroutine runs, and is removed explicitly on
// unsubscribe.
//
// Mutation is serialized by one lock; fanout reads take a snapshot so
// iterating one room's set never blocks subscribes for unrelated rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Connection]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[*Connection]struct{})}
}

// Subscribe adds conn to the room's set, creating it if absent, and starts
// the delivery goroutine. One subscription per session; idempotency is not
// required.
func (r *Registry) Subscribe(roomID int64, conn *Connection) {
	r.mu.Lock()
	subs, ok := r.rooms[roomID]
	if !ok {
		subs = make(map[*Connection]struct{})
		r.rooms[roomID] = subs
	}
	subs[conn] = struct{}{}
	r.mu.Unlock()

	conn.Start()
	metrics.FanoutSubscribesTotal.WithLabelValues("subscribe").Inc()
	metrics.FanoutActiveConnections.Inc()
}

// Unsubscribe removes conn from the room's set, pruning the entry when it
// empties (it is recreated lazily on the next subscribe), then closes the
// connection and waits for its delivery goroutine to exit.
func (r *Registry) Unsubscribe(roomID int64, conn *Connection) {
	r.mu.Lock()
	if subs, ok := r.rooms[roomID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.mu.Unlock()

	conn.Close()
	metrics.FanoutSubscribesTotal.WithLabelValues("unsubscribe").Inc()
	metrics.FanoutActiveConnections.Dec()
}

// Subscribers returns a snapshot of the room's connections. Nil when the
// room has no local subscribers.
func (r *Registry) Subscribers(roomID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(subs))
	for conn := range subs {
		out = append(out, conn)
	}
	return out
}

// RoomCount returns how many rooms currently have local subscribers.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// HasRoom reports whether the room has a registry entry.
func (r *Registry) HasRoom(roomID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}
