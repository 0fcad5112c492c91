package domain

import (
	"strconv"
	"strings"
)

const (
	roomChannelPrefix = "chat:room:"

	// RoomChannelPattern matches every room channel. The bridge opens exactly
	// one pattern subscription on it per process.
	RoomChannelPattern = roomChannelPrefix + "*"
)

// RoomChannel derives the pub/sub channel name for a room.
func RoomChannel(roomID int64) string {
	return roomChannelPrefix + strconv.FormatInt(roomID, 10)
}

// ParseRoomChannel recovers the room id from a channel name. The mapping is
// a strict bijection: anything that RoomChannel could not have produced
// (missing prefix, extra segments, non-decimal id) is rejected.
func ParseRoomChannel(channel string) (int64, bool) {
	rest, found := strings.CutPrefix(channel, roomChannelPrefix)
	if !found || rest == "" || strings.Contains(rest, ":") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	// Reject non-canonical spellings ("+5", "007") so the mapping stays a
	// strict inverse of RoomChannel.
	if strconv.FormatInt(id, 10) != rest {
		return 0, false
	}
	return id, true
}
