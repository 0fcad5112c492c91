package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hong-lou/chatrelay/internal/domain"
)

type sessionHarness struct {
	controller *SessionController
	registry   *Registry
	store      *fakePresenceStore
	publisher  *fakePublisher
	url        string
}

// newSessionHarness wires a controller behind a real upgrade handler, the
// same shape the HTTP layer uses: credential and room id arrive as query
// parameters and the handler blocks inside HandleSession until the session
// ends.
func newSessionHarness(t *testing.T, verifier domain.CredentialVerifier, membership domain.Membership) *sessionHarness {
	t.Helper()

	clock := clockwork.NewRealClock()
	registry := NewRegistry()
	store := newFakePresenceStore(clock)
	publisher := &fakePublisher{}
	presence := NewPresenceTracker(store, publisher, clock, 30*time.Second, 10*time.Second)
	controller := NewSessionController(verifier, membership, registry, presence, clock, SessionConfig{QueueSize: 16})

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		controller.HandleSession(r.Context(), sock, r.URL.Query().Get("token"), r.URL.Query().Get("room_id"))
	}))
	t.Cleanup(srv.Close)

	return &sessionHarness{
		controller: controller,
		registry:   registry,
		store:      store,
		publisher:  publisher,
		url:        "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (h *sessionHarness) dial(t *testing.T, token, roomParam string) *websocket.Conn {
	t.Helper()
	client, _, err := websocket.DefaultDialer.Dial(h.url+"?token="+token+"&room_id="+roomParam, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// expectPolicyClose reads until the server closes the socket and asserts the
// policy-violation close code, which is how rejection is distinguished from a
// normal closure on the wire.
func expectPolicyClose(t *testing.T, client *websocket.Conn) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected close code 1008, got %v", err)
}

func TestSession_InvalidCredentialRejected(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{ok: false}, stubMembership{active: true, participant: true})
	client := h.dial(t, "bogus", "42")

	expectPolicyClose(t, client)

	assert.Zero(t, h.registry.RoomCount(), "no registry entry may exist for a rejected session")
	assert.False(t, h.store.has("presence:room:42:user:7"))
	assert.Empty(t, h.publisher.byKind(domain.KindPresence))
}

func TestSession_MissingCredentialRejected(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: true, participant: true})
	client := h.dial(t, "", "42")

	expectPolicyClose(t, client)
	assert.Zero(t, h.registry.RoomCount())
}

func TestSession_NonParticipantRejected(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: true, participant: false})
	client := h.dial(t, "valid", "42")

	expectPolicyClose(t, client)
	assert.Zero(t, h.registry.RoomCount())
	assert.Empty(t, h.publisher.byKind(domain.KindPresence))
}

func TestSession_InactiveUserRejected(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: false, participant: true})
	client := h.dial(t, "valid", "42")

	expectPolicyClose(t, client)
	assert.Zero(t, h.registry.RoomCount())
}

func TestSession_BadRoomParamRejected(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: true, participant: true})

	for _, roomParam := range []string{"", "abc", "0", "-3", "5x"} {
		client := h.dial(t, "valid", roomParam)
		expectPolicyClose(t, client)
	}
	assert.Zero(t, h.registry.RoomCount())
}

func TestSession_FullLifecycle(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: true, participant: true})
	client := h.dial(t, "valid", "42")

	// Session is live: registered for fanout, presence key set, online
	// transition broadcast.
	require.Eventually(t, func() bool {
		return len(h.registry.Subscribers(42)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.store.has("presence:room:42:user:7")
	}, 2*time.Second, 10*time.Millisecond)

	online := h.publisher.byKind(domain.KindPresence)
	require.Len(t, online, 1)
	assert.Equal(t, domain.PresenceOnline, online[0].Status)
	assert.Equal(t, int64(7), online[0].UserID)

	// Enqueue through the registry just as the fanout bridge would.
	for _, conn := range h.registry.Subscribers(42) {
		conn.Enqueue([]byte(`{"type":"message","room_id":42,"content":"hi"}`))
	}
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","room_id":42,"content":"hi"}`, string(msg))

	// Client goes away; every teardown step must run.
	require.NoError(t, client.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return h.registry.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "registry entry must be removed on disconnect")
	require.Eventually(t, func() bool {
		return !h.store.has("presence:room:42:user:7")
	}, 2*time.Second, 10*time.Millisecond, "presence key must be deleted on disconnect")
	require.Eventually(t, func() bool {
		transitions := h.publisher.byKind(domain.KindPresence)
		return len(transitions) == 2 && transitions[1].Status == domain.PresenceOffline
	}, 2*time.Second, 10*time.Millisecond, "offline transition must be broadcast")
}

func TestSession_TwoSessionsSameRoomIndependentTeardown(t *testing.T) {
	h := newSessionHarness(t, stubVerifier{userID: 7, ok: true}, stubMembership{active: true, participant: true})

	first := h.dial(t, "valid", "42")
	second := h.dial(t, "valid", "42")
	_ = second

	require.Eventually(t, func() bool {
		return len(h.registry.Subscribers(42)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		return len(h.registry.Subscribers(42)) == 1
	}, 2*time.Second, 10*time.Millisecond, "only the closed session may be removed")
	assert.True(t, h.registry.HasRoom(42))
}
