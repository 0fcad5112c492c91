package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeKind discriminates the payloads exchanged over room channels.
type EnvelopeKind string

const (
	KindMessage     EnvelopeKind = "message"
	KindMessageRead EnvelopeKind = "message_read"
	KindPresence    EnvelopeKind = "presence"
)

// Presence status values carried by KindPresence envelopes.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Envelope is the unit of publication and of queued delivery. It is encoded
// once at publish time and flows through the bridge and the outbound queues
// as raw bytes; Decode is the single boundary that parses it back.
//
// The wire discriminator field is "type" (kept from the existing clients).
type Envelope struct {
	Kind EnvelopeKind `json:"type"`

	RoomID int64 `json:"room_id"`

	// KindMessage fields.
	MessageID int64  `json:"id,omitempty"`
	SenderID  int64  `json:"sender_id,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	// KindMessageRead and KindPresence fields.
	UserID            int64  `json:"user_id,omitempty"`
	LastReadMessageID int64  `json:"last_read_message_id,omitempty"`
	Status            string `json:"status,omitempty"`
}

// NewMessageEnvelope builds the envelope published after a message row commits.
func NewMessageEnvelope(messageID, roomID, senderID int64, content string, createdAt time.Time) Envelope {
	return Envelope{
		Kind:      KindMessage,
		RoomID:    roomID,
		MessageID: messageID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewMessageReadEnvelope builds the read-receipt envelope.
func NewMessageReadEnvelope(roomID, userID, lastReadMessageID int64) Envelope {
	return Envelope{
		Kind:              KindMessageRead,
		RoomID:            roomID,
		UserID:            userID,
		LastReadMessageID: lastReadMessageID,
	}
}

// NewPresenceEnvelope builds an online/offline presence transition envelope.
func NewPresenceEnvelope(roomID, userID int64, status string) Envelope {
	return Envelope{
		Kind:   KindPresence,
		RoomID: roomID,
		UserID: userID,
		Status: status,
	}
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a wire payload and rejects unknown kinds. This is
// the one place stringly-typed dispatch is allowed to exist.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch e.Kind {
	case KindMessage, KindMessageRead, KindPresence:
		return e, nil
	default:
		return Envelope{}, fmt.Errorf("decode envelope: unknown kind %q", e.Kind)
	}
}
