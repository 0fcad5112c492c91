package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fanout metrics
var (
	// FanoutMessagesTotal counts envelope deliveries enqueued to local connections.
	FanoutMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_messages_total",
			Help: "Envelopes enqueued to local connections by the bridge",
		},
	)

	// FanoutQueueDroppedTotal counts payloads evicted by the drop-oldest policy.
	FanoutQueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_queue_dropped_total",
			Help: "Outbound payloads evicted from full connection queues (drop-oldest)",
		},
	)

	// FanoutActiveConnections tracks locally registered WebSocket connections.
	FanoutActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_active_connections",
			Help: "WebSocket connections currently registered for fanout",
		},
	)

	// FanoutSubscribesTotal counts registry subscribe/unsubscribe operations.
	FanoutSubscribesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_subscribes_total",
			Help: "Registry subscription operations by direction",
		},
		[]string{"op"},
	)
)

// Bridge / pub-sub metrics
var (
	// PubSubReceiveErrorsTotal counts transient poll failures (swallowed).
	PubSubReceiveErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubsub_receive_errors_total",
			Help: "Transient errors while polling the pattern subscription",
		},
	)

	// PubSubMalformedChannelsTotal counts deliveries on unparseable channel names.
	PubSubMalformedChannelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubsub_malformed_channels_total",
			Help: "Pub/sub deliveries ignored because the channel name did not map to a room",
		},
	)

	// PubSubPublishedTotal counts envelopes published by this process.
	PubSubPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_published_total",
			Help: "Envelopes published to room channels by kind",
		},
		[]string{"kind"},
	)
)

// Session metrics
var (
	// SessionsRejectedTotal counts sessions that failed authorization.
	SessionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_sessions_rejected_total",
			Help: "WebSocket sessions closed with a policy-violation code before subscribing",
		},
	)

	// FramesRateLimitedTotal counts inbound frames deferred by the token bucket.
	FramesRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_frames_rate_limited_total",
			Help: "Inbound frames whose processing was deferred by the rate limiter",
		},
	)

	// PresenceHeartbeatsTotal counts TTL refreshes written by heartbeat tasks.
	PresenceHeartbeatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_heartbeats_total",
			Help: "Presence key TTL refreshes",
		},
	)
)
