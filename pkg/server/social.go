package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// outboxCap bounds each recipient's pending social items. When the
// outbox is full the oldest item is dropped; the table loop is never
// blocked by a slow social consumer.
const outboxCap = 64

// SocialHub is the high-frequency social channel: a pure pub-sub
// buffer, flushed on a fixed tick, fully outside the table state
// machine. It never touches god state.
type SocialHub struct {
	log      slog.Logger
	sessions *SessionManager
	tick     time.Duration

	mu       sync.Mutex
	outboxes map[string]*socialOutbox // by player id

	stop chan struct{}
	once sync.Once
}

type socialOutbox struct {
	tableID string
	items   []SocialItem
}

// NewSocialHub creates a hub flushing at the given frequency.
func NewSocialHub(log slog.Logger, sessions *SessionManager, hz int) *SocialHub {
	if log == nil {
		log = slog.Disabled
	}
	if hz <= 0 {
		hz = 10
	}
	return &SocialHub{
		log:      log,
		sessions: sessions,
		tick:     time.Second / time.Duration(hz),
		outboxes: make(map[string]*socialOutbox),
		stop:     make(chan struct{}),
	}
}

// Run flushes outboxes until Stop is called.
func (h *SocialHub) Run() {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.flush()
		}
	}
}

// Stop terminates the flush loop.
func (h *SocialHub) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Publish enqueues one item for every recipient, dropping the oldest
// entry of any full outbox.
func (h *SocialHub) Publish(tableID string, item SocialItem, recipients []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pid := range recipients {
		ob, ok := h.outboxes[pid]
		if !ok || ob.tableID != tableID {
			ob = &socialOutbox{tableID: tableID}
			h.outboxes[pid] = ob
		}
		if len(ob.items) >= outboxCap {
			ob.items = ob.items[1:]
		}
		ob.items = append(ob.items, item)
	}
}

// flush drains every non-empty outbox into a SOCIAL_BATCH per
// recipient.
func (h *SocialHub) flush() {
	h.mu.Lock()
	pending := make(map[string]SocialBatchPayload)
	for pid, ob := range h.outboxes {
		if len(ob.items) == 0 {
			continue
		}
		pending[pid] = SocialBatchPayload{TableID: ob.tableID, Items: ob.items}
		ob.items = nil
	}
	h.mu.Unlock()

	for pid, batch := range pending {
		sess := h.sessions.Lookup(pid)
		if sess == nil || !sess.Connected() {
			continue
		}
		sess.Send(EventSocialBatch, batch)
	}
}

// Drop discards a recipient's outbox (on leave).
func (h *SocialHub) Drop(playerID string) {
	h.mu.Lock()
	delete(h.outboxes, playerID)
	h.mu.Unlock()
}
