package fanout

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Default inbound frame budget: a short burst allowance with steady-state
// throttling.
const (
	DefaultFrameBurstCapacity   = 10.0
	DefaultFrameRefillPerSecond = 5.0
)

// RateLimiter is a token bucket gating inbound client frames. It is advisory
// throttling, not admission control: a denial tells the caller to pause
// briefly before processing the next frame, never to drop the connection.
//
// Each connection's read loop owns its limiter; it is not safe for
// concurrent use.
type RateLimiter struct {
	clock      clockwork.Clock
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter starting with a full bucket.
func NewRateLimiter(capacity, refillRate float64, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		clock:      clock,
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: clock.Now(),
	}
}

// Allow refills the bucket for the elapsed time and consumes one token if
// available. Returns false when the frame should be deferred.
func (r *RateLimiter) Allow() bool {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens = min(r.capacity, r.tokens+elapsed*r.refillRate)
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}
