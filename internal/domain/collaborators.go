package domain

import (
	"context"
	"time"
)

// CredentialVerifier validates a bearer credential and resolves its user.
// Verification failure is not an error, it is a policy outcome.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (userID int64, ok bool)
}

// Membership answers room-participation and account-status questions from
// the relational store. The session controller folds both answers into a
// single authorization boolean.
type Membership interface {
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)
	IsActiveUser(ctx context.Context, userID int64) (bool, error)
}

// Publisher pushes an already-encoded payload onto a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PubSubMessage is one delivery received through a pattern subscription.
type PubSubMessage struct {
	Channel string
	Payload []byte
}

// PatternSubscription is a live pattern subscription. Poll returns the next
// delivery, or (nil, nil) when the timeout elapses with nothing pending so
// the caller can observe shutdown between polls.
type PatternSubscription interface {
	Poll(ctx context.Context, timeout time.Duration) (*PubSubMessage, error)
	Close() error
}

// PatternSubscriber opens pattern subscriptions on the transport.
type PatternSubscriber interface {
	PatternSubscribe(ctx context.Context, pattern string) (PatternSubscription, error)
}

// PresenceStore is the TTL key/value surface presence liveness markers live
// in. Set refreshes the TTL; absence after expiry means offline.
type PresenceStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
