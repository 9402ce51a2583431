package server

import (
	"errors"
	mrand "math/rand"
	"sync"

	"github.com/decred/slog"
	"github.com/google/uuid"
	funk "github.com/thoas/go-funk"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

// Registry errors.
var (
	ErrTableNotFound  = errors.New("server: table not found")
	ErrAlreadyInTable = errors.New("server: player already bound to a table")
)

// TableRegistry is the directory of live tables. It owns every table,
// maps each player to at most one of them, and fans sanitized views
// out to recipients through the session manager. The maps are shared
// between the transport ingress goroutines and the table loops, so a
// reader-writer lock guards them; god state itself is never touched
// here.
type TableRegistry struct {
	log      slog.Logger
	cfg      *Config
	sessions *SessionManager
	ledger   Ledger
	social   *SocialHub

	// Rand seeds new tables' decks; nil means crypto. Tests inject.
	rand *mrand.Rand

	mu          sync.RWMutex
	tables      map[string]*poker.Table
	playerTable map[string]string
	lastGod     map[string]*poker.GodState
}

// NewTableRegistry creates an empty registry.
func NewTableRegistry(log slog.Logger, cfg *Config, sessions *SessionManager, ledger Ledger, social *SocialHub) *TableRegistry {
	if log == nil {
		log = slog.Disabled
	}
	r := &TableRegistry{
		log:         log,
		cfg:         cfg,
		sessions:    sessions,
		ledger:      ledger,
		social:      social,
		tables:      make(map[string]*poker.Table),
		playerTable: make(map[string]string),
		lastGod:     make(map[string]*poker.GodState),
	}
	if sessions != nil {
		sessions.OnExpire(r.onSessionExpired)
	}
	return r
}

// SetRand injects a deterministic deck source for new tables (tests
// only).
func (r *TableRegistry) SetRand(rng *mrand.Rand) {
	r.mu.Lock()
	r.rand = rng
	r.mu.Unlock()
}

// TableOptions overrides per-table settings at creation.
type TableOptions struct {
	SmallBlind int64
	BigBlind   int64
	MaxSeats   int
}

// CreateTable creates a table on demand and starts its run loop.
func (r *TableRegistry) CreateTable(opts TableOptions) *poker.Table {
	if opts.SmallBlind == 0 {
		opts.SmallBlind = r.cfg.DefaultSmallBlind
	}
	if opts.BigBlind == 0 {
		opts.BigBlind = r.cfg.DefaultBigBlind
	}

	r.mu.Lock()
	rng := r.rand
	r.mu.Unlock()

	table := poker.NewTable(poker.TableConfig{
		ID:          uuid.New().String(),
		Log:         r.log,
		MaxSeats:    opts.MaxSeats,
		SmallBlind:  opts.SmallBlind,
		BigBlind:    opts.BigBlind,
		Countdown:   r.cfg.Countdown,
		TurnTimeout: r.cfg.TurnTimeout,
		PayoutDelay: r.cfg.PayoutAnimation,
		BanterDelay: r.cfg.BanterPhase,
		Rand:        rng,
	}, r, r.ledger)

	r.mu.Lock()
	r.tables[table.ID()] = table
	r.mu.Unlock()

	r.log.Infof("created table %s (blinds %d/%d)", table.ID(), opts.SmallBlind, opts.BigBlind)
	return table
}

// Get returns a live table by id.
func (r *TableRegistry) Get(tableID string) (*poker.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return table, nil
}

// List returns the public summary of every live table.
func (r *TableRegistry) List() []TableSummary {
	r.mu.RLock()
	tables := make([]*poker.Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.RUnlock()

	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		god := t.Snapshot()
		if god == nil {
			continue
		}
		out = append(out, TableSummary{
			TableID:     god.TableID,
			SeatsFilled: len(god.Players),
			MaxSeats:    6,
			Phase:       god.Phase.String(),
		})
	}
	return out
}

// Bind records the player's single table binding.
func (r *TableRegistry) Bind(playerID, tableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[tableID]; !ok {
		return ErrTableNotFound
	}
	if bound, ok := r.playerTable[playerID]; ok && bound != tableID {
		return ErrAlreadyInTable
	}
	r.playerTable[playerID] = tableID
	return nil
}

// Unbind drops the player's binding.
func (r *TableRegistry) Unbind(playerID string) {
	r.mu.Lock()
	delete(r.playerTable, playerID)
	r.mu.Unlock()
}

// TableFor returns the table the player is bound to, or nil.
func (r *TableRegistry) TableFor(playerID string) *poker.Table {
	r.mu.RLock()
	tableID, ok := r.playerTable[playerID]
	table := r.tables[tableID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return table
}

// Destroy stops a table and unbinds everyone seated at it.
func (r *TableRegistry) Destroy(tableID string) error {
	r.mu.Lock()
	table, ok := r.tables[tableID]
	if !ok {
		r.mu.Unlock()
		return ErrTableNotFound
	}
	delete(r.tables, tableID)
	delete(r.lastGod, tableID)
	bound := funk.FilterString(funk.Keys(r.playerTable).([]string), func(pid string) bool {
		return r.playerTable[pid] == tableID
	})
	for _, pid := range bound {
		delete(r.playerTable, pid)
	}
	r.mu.Unlock()

	for _, pid := range bound {
		_ = table.Unseat(pid)
	}
	table.Stop()
	r.log.Infof("destroyed table %s", tableID)
	return nil
}

// onSessionExpired unseats a player whose disconnect grace lapsed.
func (r *TableRegistry) onSessionExpired(playerID string) {
	table := r.TableFor(playerID)
	r.Unbind(playerID)
	if table != nil {
		r.log.Infof("grace expired for %s, unseating from %s", playerID, table.ID())
		_ = table.Unseat(playerID)
	}
}

// recipients returns player ids bound to the table.
func (r *TableRegistry) recipients(tableID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for pid, tid := range r.playerTable {
		if tid == tableID {
			out = append(out, pid)
		}
	}
	return out
}

// ---- poker.TableSink ----

// StateChanged projects the god state per recipient and fans the views
// out: a full snapshot to sessions that need one, a delta to everyone
// else. Called from the table's run loop; sends are best-effort.
func (r *TableRegistry) StateChanged(god *poker.GodState) {
	r.mu.Lock()
	prev := r.lastGod[god.TableID]
	r.lastGod[god.TableID] = god
	r.mu.Unlock()

	for _, pid := range r.recipients(god.TableID) {
		sess := r.sessions.Lookup(pid)
		if sess == nil || !sess.Connected() {
			continue
		}
		if prev == nil || sess.TakeNeedsSnapshot() {
			view := poker.PersonalView(god, pid)
			sess.Deliver(EventGameSnapshot, view, god.Sequence)
			continue
		}
		patch := poker.Delta(prev, god, pid)
		sess.Deliver(EventStatePatch, patch, god.Sequence)
	}
}

// SendSnapshot delivers a current full snapshot to one player (join
// and rebind replay). The table republishes at a fresh sequence so the
// snapshot is strictly beyond anything the client has seen; everyone
// else receives the matching (empty) delta, keeping per-table
// sequences gapless for all recipients.
func (r *TableRegistry) SendSnapshot(tableID, playerID string) {
	sess := r.sessions.Lookup(playerID)
	if sess == nil {
		return
	}
	r.mu.RLock()
	table := r.tables[tableID]
	r.mu.RUnlock()
	if table == nil {
		return
	}
	sess.MarkNeedsSnapshot()
	table.Touch()
}

// PlayerAction broadcasts the public action record to the table.
func (r *TableRegistry) PlayerAction(tableID, playerID, action string, amount, pot int64) {
	payload := PlayerActionPayload{
		PlayerID: playerID,
		Action:   action,
		Amount:   amount,
		NewPot:   pot,
	}
	for _, pid := range r.recipients(tableID) {
		if sess := r.sessions.Lookup(pid); sess != nil {
			sess.Send(EventPlayerAction, payload)
		}
	}
}

// HandResult broadcasts the showdown outcome.
func (r *TableRegistry) HandResult(tableID string, result *poker.HandResult) {
	payload := HandResultPayload{}
	for _, w := range result.Winners {
		payload.Winners = append(payload.Winners, HandResultWinner{
			PlayerID: w.PlayerID,
			Cards:    w.Cards,
			HandRank: w.HandRank,
			Amount:   w.Amount,
		})
	}
	for _, p := range result.Pots {
		payload.Pots = append(payload.Pots, HandResultPot{Amount: p.Amount, Eligible: p.Eligible})
	}
	for _, pid := range r.recipients(tableID) {
		if sess := r.sessions.Lookup(pid); sess != nil {
			sess.Send(EventHandResult, payload)
		}
	}
}

// Banter routes the banter prompt onto the social channel.
func (r *TableRegistry) Banter(tableID, prompt string) {
	if r.social == nil {
		return
	}
	r.social.Publish(tableID, SocialItem{Type: "BANTER_PROMPT", Text: prompt}, r.recipients(tableID))
}

// TableError reports a table-level failure to every seated client.
func (r *TableRegistry) TableError(tableID, code, message string) {
	wire := CodeInvalidAction
	if code == "LEDGER_FAILURE" {
		wire = CodeInsufficientChips
	}
	payload := ErrorPayload{Code: wire, Message: message}
	for _, pid := range r.recipients(tableID) {
		if sess := r.sessions.Lookup(pid); sess != nil {
			sess.Send(EventError, payload)
		}
	}
}
