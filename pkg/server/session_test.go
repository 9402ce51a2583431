package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenVerifiesTicket(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)

	tr := &fakeTransport{}
	sess, err := sm.Open(context.Background(), tr, "mock:alice:Alice")
	require.NoError(t, err)
	require.Equal(t, "alice", sess.PlayerID)
	require.Equal(t, "Alice", sess.Name)
	require.NotEmpty(t, sess.Token)
	require.True(t, sess.Connected())

	_, err = sm.Open(context.Background(), tr, "nonsense")
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestOnePlayerOneSession(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)

	tr1 := &fakeTransport{}
	first, err := sm.Open(context.Background(), tr1, "mock:alice:Alice")
	require.NoError(t, err)

	tr2 := &fakeTransport{}
	second, err := sm.Open(context.Background(), tr2, "mock:alice:Alice")
	require.NoError(t, err)

	require.Same(t, first, second, "a player identifier has at most one session")
	require.True(t, tr1.closed, "superseded transport is closed")
	require.Same(t, second, sm.ByTransport(tr2))
}

func TestRebindWithinGrace(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)

	tr1 := &fakeTransport{}
	sess, err := sm.Open(context.Background(), tr1, "mock:alice:Alice")
	require.NoError(t, err)

	sm.Close(tr1)
	require.False(t, sess.Connected())

	tr2 := &fakeTransport{}
	rebound, err := sm.Rebind(context.Background(), tr2, "mock:alice:Alice", sess.Token)
	require.NoError(t, err)
	require.Same(t, sess, rebound)
	require.True(t, sess.Connected())
	require.True(t, sess.TakeNeedsSnapshot(), "rebind schedules a full snapshot replay")
}

func TestRebindRejectsWrongToken(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)

	tr1 := &fakeTransport{}
	_, err := sm.Open(context.Background(), tr1, "mock:alice:Alice")
	require.NoError(t, err)

	_, err = sm.Rebind(context.Background(), &fakeTransport{}, "mock:alice:Alice", "bogus")
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestRebindUnknownSessionFails(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)
	_, err := sm.Rebind(context.Background(), &fakeTransport{}, "mock:ghost:Ghost", "")
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestGraceExpiryDestroysSessionAndFiresHook(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, 30*time.Millisecond)

	var mu sync.Mutex
	var expired []string
	sm.OnExpire(func(playerID string) {
		mu.Lock()
		expired = append(expired, playerID)
		mu.Unlock()
	})

	tr := &fakeTransport{}
	_, err := sm.Open(context.Background(), tr, "mock:alice:Alice")
	require.NoError(t, err)

	sm.Close(tr)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1 && expired[0] == "alice"
	}, 2*time.Second, 5*time.Millisecond)
	require.Nil(t, sm.Lookup("alice"))
}

func TestReconnectCancelsGraceExpiry(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, 50*time.Millisecond)

	fired := make(chan string, 1)
	sm.OnExpire(func(playerID string) { fired <- playerID })

	tr := &fakeTransport{}
	sess, err := sm.Open(context.Background(), tr, "mock:alice:Alice")
	require.NoError(t, err)
	sm.Close(tr)

	_, err = sm.Rebind(context.Background(), &fakeTransport{}, "mock:alice:Alice", sess.Token)
	require.NoError(t, err)

	select {
	case pid := <-fired:
		t.Fatalf("grace expiry fired for %s despite rebind", pid)
	case <-time.After(150 * time.Millisecond):
	}
	require.NotNil(t, sm.Lookup("alice"))
}

func TestDeliverDropsStaleSequences(t *testing.T) {
	sm := NewSessionManager(nil, MockVerifier{}, time.Hour)
	tr := &fakeTransport{}
	sess, err := sm.Open(context.Background(), tr, "mock:alice:Alice")
	require.NoError(t, err)

	sess.Deliver("STATE_PATCH", map[string]int{"sequenceId": 5}, 5)
	sess.Deliver("STATE_PATCH", map[string]int{"sequenceId": 4}, 4)
	sess.Deliver("STATE_PATCH", map[string]int{"sequenceId": 6}, 6)

	require.Equal(t, 2, tr.count("STATE_PATCH"), "stale sequence must be dropped")
	require.Equal(t, uint64(6), sess.LastSequence())
}
