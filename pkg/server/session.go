package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/weedbox/timebank"
)

// Transport is one client's ordered outbound message channel. The
// websocket layer implements it; tests substitute an in-memory fake.
type Transport interface {
	Send(event string, payload interface{}) error
	Close() error
}

// ErrSessionExpired is returned when a rebind arrives after the grace
// window, or for a player with no session at all.
var ErrSessionExpired = errors.New("server: session expired or unknown")

// Session binds a verified player identity to at most one logical seat
// across transport reconnections. It outlives a transport by up to the
// grace window.
type Session struct {
	PlayerID string
	Name     string
	Token    string // opaque, issued on open, accepted on rebind

	mu            sync.Mutex
	tableID       string
	transport     Transport
	connected     bool
	lastSeq       uint64
	lastActivity  time.Time
	needsSnapshot bool
}

// TableID returns the table the session is bound to, or "".
func (s *Session) TableID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableID
}

// SetTable records the session's table binding.
func (s *Session) SetTable(tableID string) {
	s.mu.Lock()
	s.tableID = tableID
	s.mu.Unlock()
}

// Connected reports whether a live transport is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastSequence returns the last delivered sequence counter.
func (s *Session) LastSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Deliver sends an event if a transport is attached, recording seq as
// the session's last-delivered counter when it is higher. Deltas at or
// below the last delivered counter are dropped; the client relies on
// the monotone counter the same way.
func (s *Session) Deliver(event string, payload interface{}, seq uint64) {
	s.mu.Lock()
	tr := s.transport
	if !s.connected || tr == nil {
		s.mu.Unlock()
		return
	}
	if seq > 0 {
		if seq <= s.lastSeq {
			s.mu.Unlock()
			return
		}
		s.lastSeq = seq
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	// Best-effort: a dead transport is detected by the read loop.
	_ = tr.Send(event, payload)
}

// Send delivers an unsequenced event (errors, social batches).
func (s *Session) Send(event string, payload interface{}) {
	s.Deliver(event, payload, 0)
}

// MarkNeedsSnapshot flags that the next state change must be delivered
// as a full snapshot rather than a delta.
func (s *Session) MarkNeedsSnapshot() {
	s.mu.Lock()
	s.needsSnapshot = true
	s.mu.Unlock()
}

// TakeNeedsSnapshot reads and clears the snapshot flag.
func (s *Session) TakeNeedsSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.needsSnapshot
	s.needsSnapshot = false
	return v
}

// SessionManager owns every session, keyed by player identifier. A
// player has at most one session at a time.
type SessionManager struct {
	log      slog.Logger
	verifier IdentityVerifier
	grace    time.Duration

	mu          sync.RWMutex
	sessions    map[string]*Session
	byTransport map[Transport]*Session
	graceTimers map[string]*timebank.TimeBank

	// onExpire runs when a disconnected session's grace window lapses;
	// the registry hooks it to unseat the player.
	onExpire func(playerID string)
}

// NewSessionManager creates a manager with the given identity adapter
// and grace window.
func NewSessionManager(log slog.Logger, verifier IdentityVerifier, grace time.Duration) *SessionManager {
	if log == nil {
		log = slog.Disabled
	}
	return &SessionManager{
		log:         log,
		verifier:    verifier,
		grace:       grace,
		sessions:    make(map[string]*Session),
		byTransport: make(map[Transport]*Session),
		graceTimers: make(map[string]*timebank.TimeBank),
	}
}

// OnExpire registers the grace-expiry hook.
func (sm *SessionManager) OnExpire(fn func(playerID string)) {
	sm.mu.Lock()
	sm.onExpire = fn
	sm.mu.Unlock()
}

// Open verifies the ticket and creates a session for the returned
// identity, or attaches the transport to the player's existing
// session. The previous transport, if any, is closed.
func (sm *SessionManager) Open(ctx context.Context, transport Transport, ticket string) (*Session, error) {
	ident, err := sm.verifier.Verify(ctx, ticket)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, ok := sm.sessions[ident.ID]
	if !ok {
		sess = &Session{
			PlayerID: ident.ID,
			Name:     ident.Name,
			Token:    uuid.New().String(),
		}
		sm.sessions[ident.ID] = sess
		sm.log.Infof("session opened for %s (%s)", ident.ID, ident.Name)
	}

	sm.attachLocked(sess, transport)
	return sess, nil
}

// Rebind attaches a new transport to an existing in-grace session.
// The ticket is re-verified; a stale or unknown session fails with
// ErrSessionExpired.
func (sm *SessionManager) Rebind(ctx context.Context, transport Transport, ticket, token string) (*Session, error) {
	ident, err := sm.verifier.Verify(ctx, ticket)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, ok := sm.sessions[ident.ID]
	if !ok {
		return nil, ErrSessionExpired
	}
	if token != "" && token != sess.Token {
		return nil, ErrInvalidTicket
	}

	sm.attachLocked(sess, transport)
	sess.MarkNeedsSnapshot()
	sm.log.Infof("session rebound for %s", ident.ID)
	return sess, nil
}

// attachLocked swaps the transport, cancels any grace timer and marks
// the session connected. Caller holds sm.mu.
func (sm *SessionManager) attachLocked(sess *Session, transport Transport) {
	if tb, ok := sm.graceTimers[sess.PlayerID]; ok {
		tb.Cancel()
		delete(sm.graceTimers, sess.PlayerID)
	}

	sess.mu.Lock()
	old := sess.transport
	sess.transport = transport
	sess.connected = true
	sess.lastActivity = time.Now()
	sess.mu.Unlock()

	if old != nil && old != transport {
		_ = old.Close()
		delete(sm.byTransport, old)
	}
	if transport != nil {
		sm.byTransport[transport] = sess
	}
}

// Close marks the session behind the transport disconnected and
// schedules grace expiry. The seat is kept for the whole window.
func (sm *SessionManager) Close(transport Transport) {
	sm.mu.Lock()
	sess, ok := sm.byTransport[transport]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.byTransport, transport)

	sess.mu.Lock()
	if sess.transport == transport {
		sess.transport = nil
		sess.connected = false
	}
	sess.mu.Unlock()

	tb := timebank.NewTimeBank()
	sm.graceTimers[sess.PlayerID] = tb
	playerID := sess.PlayerID
	sm.mu.Unlock()

	sm.log.Debugf("session %s disconnected, grace %v", playerID, sm.grace)
	_ = tb.NewTask(sm.grace, func(isCancelled bool) {
		if isCancelled {
			return
		}
		sm.expire(playerID)
	})
}

// expire destroys a still-disconnected session after the grace window.
func (sm *SessionManager) expire(playerID string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[playerID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	sess.mu.Lock()
	connected := sess.connected
	sess.mu.Unlock()
	if connected {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, playerID)
	delete(sm.graceTimers, playerID)
	onExpire := sm.onExpire
	sm.mu.Unlock()

	sm.log.Infof("session %s expired after grace window", playerID)
	if onExpire != nil {
		onExpire(playerID)
	}
}

// Lookup returns the session for a player id, or nil.
func (sm *SessionManager) Lookup(playerID string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[playerID]
}

// ByTransport resolves the session attached to a transport, or nil.
func (sm *SessionManager) ByTransport(transport Transport) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.byTransport[transport]
}

// Destroy removes a session outright (logout).
func (sm *SessionManager) Destroy(playerID string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[playerID]
	if ok {
		delete(sm.sessions, playerID)
		if tb, had := sm.graceTimers[playerID]; had {
			tb.Cancel()
			delete(sm.graceTimers, playerID)
		}
	}
	sm.mu.Unlock()

	if ok {
		sess.mu.Lock()
		tr := sess.transport
		sess.transport = nil
		sess.connected = false
		sess.mu.Unlock()
		if tr != nil {
			_ = tr.Close()
		}
	}
}
