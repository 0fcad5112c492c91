// Package redis adapts go-redis to the transport collaborator interfaces:
// room-channel publishing, the pattern subscription the bridge consumes,
// presence TTL keys, and the unread counter cache.
package redis
