package fanout

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegisteredConn(t *testing.T, r *Registry, roomID int64) *Connection {
	t.Helper()
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 4, clockwork.NewRealClock())
	r.Subscribe(roomID, conn)
	return conn
}

func TestRegistry_SubscribeStartsConnection(t *testing.T) {
	registry := NewRegistry()
	conn := newRegisteredConn(t, registry, 42)
	defer registry.Unsubscribe(42, conn)

	assert.True(t, conn.Running())
	assert.True(t, registry.HasRoom(42))
	assert.Len(t, registry.Subscribers(42), 1)
}

func TestRegistry_UnsubscribeStopsAndPrunes(t *testing.T) {
	registry := NewRegistry()
	first := newRegisteredConn(t, registry, 42)
	second := newRegisteredConn(t, registry, 42)
	require.Len(t, registry.Subscribers(42), 2)

	registry.Unsubscribe(42, first)
	assert.False(t, first.Running())
	assert.True(t, registry.HasRoom(42), "room entry stays while subscribers remain")
	assert.Len(t, registry.Subscribers(42), 1)

	registry.Unsubscribe(42, second)
	assert.False(t, second.Running())
	assert.False(t, registry.HasRoom(42), "empty room entry must be pruned")
	assert.Zero(t, registry.RoomCount())
}

func TestRegistry_RoomRecreatedAfterPrune(t *testing.T) {
	registry := NewRegistry()
	conn := newRegisteredConn(t, registry, 7)
	registry.Unsubscribe(7, conn)
	require.False(t, registry.HasRoom(7))

	again := newRegisteredConn(t, registry, 7)
	defer registry.Unsubscribe(7, again)
	assert.True(t, registry.HasRoom(7))
}

func TestRegistry_SubscribersSnapshotIsolatedPerRoom(t *testing.T) {
	registry := NewRegistry()
	a := newRegisteredConn(t, registry, 1)
	b := newRegisteredConn(t, registry, 2)
	defer registry.Unsubscribe(1, a)
	defer registry.Unsubscribe(2, b)

	assert.Len(t, registry.Subscribers(1), 1)
	assert.Len(t, registry.Subscribers(2), 1)
	assert.Nil(t, registry.Subscribers(3))
}
