package fanout

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/hong-lou/chatrelay/internal/domain"
	"github.com/hong-lou/chatrelay/internal/metrics"
)

// rateLimitRetryDelay is how long the read loop pauses when the inbound
// token bucket is empty before retrying the same frame slot.
const rateLimitRetryDelay = 200 * time.Millisecond

// SessionConfig tunes per-session resources. Zero values select defaults.
type SessionConfig struct {
	QueueSize            int
	FrameBurstCapacity   float64
	FrameRefillPerSecond float64
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.FrameBurstCapacity <= 0 {
		c.FrameBurstCapacity = DefaultFrameBurstCapacity
	}
	if c.FrameRefillPerSecond <= 0 {
		c.FrameRefillPerSecond = DefaultFrameRefillPerSecond
	}
	return c
}

// SessionController runs the full WebSocket session lifecycle:
// authorize, subscribe, read loop, unconditional teardown.
type SessionController struct {
	verifier   domain.CredentialVerifier
	membership domain.Membership
	registry   *Registry
	presence   *PresenceTracker
	clock      clockwork.Clock
	cfg        SessionConfig
}

func NewSessionController(
	verifier domain.CredentialVerifier,
	membership domain.Membership,
	registry *Registry,
	presence *PresenceTracker,
	clock clockwork.Clock,
	cfg SessionConfig,
) *SessionController {
	return &SessionController{
		verifier:   verifier,
		membership: membership,
		registry:   registry,
		presence:   presence,
		clock:      clock,
		cfg:        cfg.withDefaults(),
	}
}

// HandleSession owns sock for the lifetime of the session and only returns
// when it ends. An unauthorized session is closed with a policy-violation
// code before any resource is allocated: no Connection, no registry entry,
// no presence key. roomParam is the raw room id as extracted from the
// request; a missing or non-numeric value fails closed like any other
// authorization failure.
func (s *SessionController) HandleSession(ctx context.Context, sock *websocket.Conn, credential, roomParam string) {
	roomID, err := strconv.ParseInt(roomParam, 10, 64)
	if err != nil || roomID <= 0 {
		metrics.SessionsRejectedTotal.Inc()
		rejectSocket(sock, s.clock)
		return
	}

	userID, ok := s.authorize(ctx, credential, roomID)
	if !ok {
		metrics.SessionsRejectedTotal.Inc()
		rejectSocket(sock, s.clock)
		return
	}

	conn := NewConnection(sock, s.cfg.QueueSize, s.clock)
	s.registry.Subscribe(roomID, conn)

	if err := s.presence.MarkOnline(ctx, roomID, userID); err != nil {
		// Transient store failure; the heartbeat repairs the key shortly.
		slog.Warn("mark online failed", "room_id", roomID, "user_id", userID, "error", err)
	}
	stopHeartbeat := s.presence.StartHeartbeat(roomID, userID)

	// Teardown steps are stacked as individual defers so each runs even if
	// an earlier one panics: heartbeat stops first, then the connection
	// leaves the registry (closing its delivery goroutine), then presence
	// goes offline. Partial teardown is a correctness bug, not an option.
	defer func() {
		if err := s.presence.MarkOffline(context.Background(), roomID, userID); err != nil {
			slog.Warn("mark offline failed", "room_id", roomID, "user_id", userID, "error", err)
		}
		slog.Info("ws session closed", "conn_id", conn.ID().String(), "room_id", roomID, "user_id", userID)
	}()
	defer s.registry.Unsubscribe(roomID, conn)
	defer stopHeartbeat()

	slog.Info("ws session active", "conn_id", conn.ID().String(), "room_id", roomID, "user_id", userID)

	s.readLoop(sock)
}

// authorize collapses credential validity, account status, and room
// membership into one boolean. No partial-authorization state leaks out.
func (s *SessionController) authorize(ctx context.Context, credential string, roomID int64) (int64, bool) {
	if credential == "" {
		return 0, false
	}
	userID, ok := s.verifier.Verify(ctx, credential)
	if !ok {
		return 0, false
	}
	active, err := s.membership.IsActiveUser(ctx, userID)
	if err != nil || !active {
		return 0, false
	}
	participant, err := s.membership.IsParticipant(ctx, roomID, userID)
	if err != nil || !participant {
		return 0, false
	}
	return userID, true
}

// readLoop consumes inbound frames (keep-alives only today) behind the
// advisory token bucket. A denied frame is deferred, never dropped, and
// denial never closes the connection. Any read failure ends the session.
func (s *SessionController) readLoop(sock *websocket.Conn) {
	limiter := NewRateLimiter(s.cfg.FrameBurstCapacity, s.cfg.FrameRefillPerSecond, s.clock)

	for {
		for !limiter.Allow() {
			metrics.FramesRateLimitedTotal.Inc()
			s.clock.Sleep(rateLimitRetryDelay)
		}
		if _, _, err := sock.ReadMessage(); err != nil {
			return
		}
	}
}

// rejectSocket distinguishes policy rejection from normal closure at the
// socket layer: close code 1008 before the handshake completes any further.
func rejectSocket(sock *websocket.Conn, clock clockwork.Clock) {
	deadline := clock.Now().Add(writeDeadline)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
	_ = sock.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = sock.Close()
}
