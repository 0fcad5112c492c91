// Package server exposes the HTTP surface: the WebSocket session entry
// point, the REST producer endpoints that publish envelopes after
// committing rows, and the health/metrics endpoints.
package server
