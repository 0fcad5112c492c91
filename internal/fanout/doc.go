// Package fanout implements the room-messaging delivery core: the
// per-connection bounded outbound queue, the room subscription registry,
// the single-per-process pub/sub bridge, presence heartbeats, and the
// WebSocket session lifecycle.
//
// Delivery is best-effort. Slow consumers lose the oldest queued
// payloads in favor of freshness, and transport hiccups degrade to silent
// loss for that interval; clients recover history through the REST message
// list endpoint.
package fanout
