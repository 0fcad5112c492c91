package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/hong-lou/chatrelay/internal/metrics"
)

const (
	// DefaultQueueSize bounds the outbound queue per connection.
	DefaultQueueSize = 256

	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Connection owns one accepted WebSocket's outbound side: a bounded FIFO of
// serialized envelopes and the single delivery goroutine that drains it.
// Fanout speed is decoupled from socket write speed; a slow client only
// loses its own oldest payloads.
type Connection struct {
	id     uuid.UUID
	sock   *websocket.Conn
	clock  clockwork.Clock
	sendCh chan []byte
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	running   atomic.Bool
	dropped   atomic.Int64
}

// NewConnection wraps an accepted socket. queueSize <= 0 selects the default.
func NewConnection(sock *websocket.Conn, queueSize int, clock clockwork.Clock) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &Connection{
		id:     uuid.New(),
		sock:   sock,
		clock:  clock,
		sendCh: make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
	c.configurePongHandler()
	return c
}

// ID identifies the connection in logs.
func (c *Connection) ID() uuid.UUID { return c.id }

// Start spawns the delivery goroutine. Subsequent calls are no-ops.
func (c *Connection) Start() {
	c.startOnce.Do(func() {
		c.running.Store(true)
		c.wg.Add(1)
		go c.deliveryLoop()
	})
}

// Enqueue pushes a payload onto the outbound queue without ever blocking
// the caller. When the queue is full the oldest pending payload is evicted
// first (drop-oldest): recency wins over completeness.
func (c *Connection) Enqueue(payload []byte) {
	select {
	case c.sendCh <- payload:
		return
	default:
	}

	select {
	case <-c.sendCh:
		c.dropped.Add(1)
		metrics.FanoutQueueDroppedTotal.Inc()
	default:
	}

	select {
	case c.sendCh <- payload:
	default:
		// A concurrent enqueue refilled the slot; this payload is the drop.
		c.dropped.Add(1)
		metrics.FanoutQueueDroppedTotal.Inc()
	}
}

// Close stops the delivery goroutine and returns only after it has exited,
// so no write is in flight once the connection counts as closed. Idempotent.
func (c *Connection) Close() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
	c.wg.Wait()
}

// Running reports whether the delivery goroutine is alive.
func (c *Connection) Running() bool { return c.running.Load() }

// Dropped returns how many payloads the drop-oldest policy evicted.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }

// QueueLen returns the number of pending payloads.
func (c *Connection) QueueLen() int { return len(c.sendCh) }

func (c *Connection) deliveryLoop() {
	defer c.wg.Done()
	defer c.running.Store(false)

	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.sendCh:
			c.updateWriteDeadline()
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				// Treated like an explicit close; the session notices via
				// its own read failure and runs teardown.
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) configurePongHandler() {
	c.updateReadDeadline()
	c.sock.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Connection) updateWriteDeadline() {
	_ = c.sock.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Connection) updateReadDeadline() {
	_ = c.sock.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
