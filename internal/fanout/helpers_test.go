package fanout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hong-lou/chatrelay/internal/domain"
)

// newSocketPair upgrades one WebSocket over httptest and returns both ends.
func newSocketPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

// --- Transport fakes ---

type publishRecord struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	records []publishRecord
	failing bool
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("publish failed")
	}
	p.records = append(p.records, publishRecord{channel: channel, payload: append([]byte(nil), payload...)})
	return nil
}

func (p *fakePublisher) byKind(kind domain.EnvelopeKind) []domain.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Envelope
	for _, rec := range p.records {
		e, err := domain.DecodeEnvelope(rec.payload)
		if err == nil && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type presenceEntry struct {
	value     string
	expiresAt time.Time
}

type fakePresenceStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]presenceEntry
}

func newFakePresenceStore(clock clockwork.Clock) *fakePresenceStore {
	return &fakePresenceStore{clock: clock, entries: make(map[string]presenceEntry)}
}

func (s *fakePresenceStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = presenceEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *fakePresenceStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *fakePresenceStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return ok && s.clock.Now().Before(entry.expiresAt)
}

func (s *fakePresenceStore) expiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry.expiresAt, ok
}

type fakeSubscription struct {
	deliveries chan domain.PubSubMessage
	pollErrs   chan error
	closed     chan struct{}
	closeOnce  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		deliveries: make(chan domain.PubSubMessage, 64),
		pollErrs:   make(chan error, 64),
		closed:     make(chan struct{}),
	}
}

func (s *fakeSubscription) deliver(channel string, payload []byte) {
	s.deliveries <- domain.PubSubMessage{Channel: channel, Payload: payload}
}

func (s *fakeSubscription) Poll(_ context.Context, timeout time.Duration) (*domain.PubSubMessage, error) {
	select {
	case err := <-s.pollErrs:
		return nil, err
	case msg := <-s.deliveries:
		return &msg, nil
	case <-s.closed:
		return nil, errors.New("subscription closed")
	case <-time.After(timeout):
		return nil, nil
	}
}

func (s *fakeSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeSubscriber struct {
	sub *fakeSubscription
	err error

	mu       sync.Mutex
	patterns []string
}

func (f *fakeSubscriber) PatternSubscribe(_ context.Context, pattern string) (domain.PatternSubscription, error) {
	f.mu.Lock()
	f.patterns = append(f.patterns, pattern)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

// --- Collaborator stubs ---

type stubVerifier struct {
	userID int64
	ok     bool
}

func (v stubVerifier) Verify(context.Context, string) (int64, bool) {
	return v.userID, v.ok
}

type stubMembership struct {
	active      bool
	participant bool
	err         error
}

func (m stubMembership) IsParticipant(context.Context, int64, int64) (bool, error) {
	return m.participant, m.err
}

func (m stubMembership) IsActiveUser(context.Context, int64) (bool, error) {
	return m.active, m.err
}
