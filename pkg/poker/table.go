package poker

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sort"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/weedbox/syncsaga"
	"github.com/weedbox/timebank"

	"github.com/holdemlabs/holdemd/pkg/statemachine"
)

// TableConfig holds configuration for a new table.
type TableConfig struct {
	ID         string
	Log        slog.Logger
	MaxSeats   int
	SmallBlind int64
	BigBlind   int64

	// Phase and turn durations. Timed phases never advance early so
	// clients have time to animate.
	Countdown   time.Duration // Starting -> Dealing
	TurnTimeout time.Duration // acting player auto-fold
	PayoutDelay time.Duration // PayoutAnimation -> SocialBanter
	BanterDelay time.Duration // SocialBanter -> Waiting

	// Rand seeds the deck; nil selects the crypto source. Tests
	// inject a fixed seed, production never does.
	Rand *mrand.Rand
}

// HandResult is the showdown outcome published to the table.
type HandResult struct {
	TableID string         `json:"tableId"`
	Winners []WinnerRecord `json:"winners"`
	Pots    []PotRecord    `json:"pots"`
}

// TableSink receives everything a table emits: god snapshots after
// every visible mutation (for the serializer/fan-out layer), public
// action broadcasts, hand results, banter prompts and table-level
// errors. All methods are called from the table's run loop and must
// not block.
type TableSink interface {
	StateChanged(god *GodState)
	PlayerAction(tableID, playerID, action string, amount, pot int64)
	HandResult(tableID string, result *HandResult)
	Banter(tableID, prompt string)
	TableError(tableID, code, message string)
}

// Table is the authoritative state machine for one poker table. All
// mutation happens on the table's own run loop, which consumes an
// ordered command queue; callers enqueue and wait. No lock guards the
// god state because only the loop touches it.
type Table struct {
	log slog.Logger
	cfg TableConfig

	phase *statemachine.Machine[Phase]
	seq   uint64

	deck      *Deck
	community []Card
	pots      *PotManager

	currentBet int64
	minRaise   int64
	dealer     int
	acting     int

	seats []*Player // index = seat; nil = empty

	handNum     uint64
	handStarted time.Time
	actions     []HandAction

	cmds chan func()
	quit chan struct{}

	turnTimer  *timebank.TimeBank
	phaseTimer *timebank.TimeBank
	turnToken  int

	ready *syncsaga.ReadyGroup

	sink     TableSink
	recorder HandRecorder

	// Set when a ledger commit failed; the table refuses to start the
	// next hand and keeps the dealer button where it was until
	// Resume() succeeds.
	paused bool

	pendingRecord *HandRecord
	pendingDeltas map[string]int64
}

// ledgerTimeout bounds every recorder call.
const ledgerTimeout = 2 * time.Second

// ledgerAttempts is the bounded retry policy for hand commits.
const ledgerAttempts = 3

// NewTable creates a table and starts its run loop.
func NewTable(cfg TableConfig, sink TableSink, recorder HandRecorder) *Table {
	if cfg.MaxSeats <= 0 || cfg.MaxSeats > 6 {
		cfg.MaxSeats = 6
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}

	var deck *Deck
	if cfg.Rand != nil {
		deck = NewDeck(cfg.Rand)
	} else {
		deck = NewCryptoDeck()
	}

	t := &Table{
		log:        cfg.Log,
		cfg:        cfg,
		phase:      statemachine.New(PhaseLobby, phaseTransitions()),
		deck:       deck,
		pots:       NewPotManager(),
		dealer:     -1,
		acting:     -1,
		seats:      make([]*Player, cfg.MaxSeats),
		cmds:       make(chan func(), 128),
		quit:       make(chan struct{}),
		turnTimer:  timebank.NewTimeBank(),
		phaseTimer: timebank.NewTimeBank(),
		sink:       sink,
		recorder:   recorder,
	}

	go t.run()
	return t
}

// ID returns the table identifier.
func (t *Table) ID() string { return t.cfg.ID }

// Phase returns the current phase (safe from any goroutine).
func (t *Table) Phase() Phase { return t.phase.Current() }

// Stop terminates the run loop. Pending commands are abandoned.
func (t *Table) Stop() {
	close(t.quit)
	t.turnTimer.Cancel()
	t.phaseTimer.Cancel()
}

// run services the command queue; this is the table's single logical
// thread.
func (t *Table) run() {
	for {
		select {
		case <-t.quit:
			return
		case cmd := <-t.cmds:
			cmd()
		}
	}
}

// do enqueues fn onto the run loop and waits for its result.
func (t *Table) do(fn func() error) error {
	done := make(chan error, 1)
	select {
	case t.cmds <- func() { done <- fn() }:
	case <-t.quit:
		return fmt.Errorf("poker: table %s stopped", t.cfg.ID)
	}
	select {
	case err := <-done:
		return err
	case <-t.quit:
		return fmt.Errorf("poker: table %s stopped", t.cfg.ID)
	}
}

// post enqueues fn without waiting; used by timer callbacks and by
// the loop itself, so it must never block the loop.
func (t *Table) post(fn func()) {
	select {
	case t.cmds <- fn:
	default:
		go func() {
			select {
			case t.cmds <- fn:
			case <-t.quit:
			}
		}()
	}
}

// Seat binds a player to the given seat with a buy-in stack.
func (t *Table) Seat(playerID, name string, seat int, buyIn int64) error {
	return t.do(func() error { return t.seatLocked(playerID, name, seat, buyIn) })
}

// Unseat removes a player. Mid-hand this folds them immediately; the
// seat frees at hand end.
func (t *Table) Unseat(playerID string) error {
	return t.do(func() error { return t.unseatLocked(playerID) })
}

// Ready marks the player's binding ready. Idempotent.
func (t *Table) Ready(playerID string) error {
	return t.do(func() error { return t.readyLocked(playerID) })
}

// HandleAction applies a betting action from the given player.
func (t *Table) HandleAction(playerID string, action Action) error {
	return t.do(func() error { return t.actionLocked(playerID, action) })
}

// Resume retries a failed ledger commit and unpauses the table on
// success.
func (t *Table) Resume() error {
	return t.do(func() error { return t.resumeLocked() })
}

// Touch bumps the sequence counter and re-publishes the current state
// to the sink. Used for join/rebind replay: the recipient flagged for
// a full snapshot receives one whose sequence is strictly beyond
// anything previously delivered.
func (t *Table) Touch() {
	_ = t.do(func() error {
		t.broadcast()
		return nil
	})
}

// Snapshot returns a copy of the god state as of now.
func (t *Table) Snapshot() *GodState {
	var god *GodState
	_ = t.do(func() error {
		god = t.godState()
		return nil
	})
	return god
}

// SeatedCount returns the number of occupied seats.
func (t *Table) SeatedCount() int {
	n := 0
	_ = t.do(func() error {
		for _, p := range t.seats {
			if p != nil {
				n++
			}
		}
		return nil
	})
	return n
}

// ---- seating & readiness (run-loop only below this point) ----

func (t *Table) seatLocked(playerID, name string, seat int, buyIn int64) error {
	switch t.phase.Current() {
	case PhaseLobby, PhaseWaiting, PhaseSocialBanter:
	default:
		return ErrInvalidAction
	}

	if seat < 0 || seat >= len(t.seats) || buyIn <= 0 {
		return ErrInvalidAction
	}
	full := true
	for _, p := range t.seats {
		if p == nil {
			full = false
		} else if p.ID == playerID {
			return ErrAlreadySeated
		}
	}
	if full {
		return ErrTableFull
	}
	if t.seats[seat] != nil {
		return ErrSeatOccupied
	}

	t.seats[seat] = NewPlayer(playerID, name, seat, buyIn)
	t.log.Infof("table %s: %s seated at %d with %d chips", t.cfg.ID, playerID, seat, buyIn)

	if t.phase.Is(PhaseLobby) {
		t.mustTransition(PhaseWaiting)
	}
	t.rebuildReadyGroup()
	t.broadcast()
	return nil
}

func (t *Table) unseatLocked(playerID string) error {
	p := t.findPlayer(playerID)
	if p == nil {
		return ErrNotSeated
	}

	if t.phase.Current().bettingStreet() && p.StillIn() {
		// Treated as an immediate fold for the remainder of the hand;
		// the seat frees at hand end.
		p.Leaving = true
		t.foldPlayer(p, "leave")
		t.afterAction(p)
		return nil
	}
	if t.phase.Current().inHand() {
		// Showdown or payout already under way; just flag the seat to
		// free once the hand wraps up.
		p.Leaving = true
		t.broadcast()
		return nil
	}

	t.seats[p.Seat] = nil
	t.log.Infof("table %s: %s unseated from %d", t.cfg.ID, playerID, p.Seat)
	t.rebuildReadyGroup()
	t.broadcast()
	return nil
}

func (t *Table) readyLocked(playerID string) error {
	p := t.findPlayer(playerID)
	if p == nil {
		return ErrNotSeated
	}
	if p.IsReady {
		return nil // calling ready twice has no additional effect
	}
	p.IsReady = true
	if t.ready != nil {
		t.ready.Ready(int64(p.Seat))
	}
	t.checkAllReady()
	t.broadcast()
	return nil
}

// checkAllReady posts the Waiting -> Starting trigger when every
// chip-positive seat is ready, independent of the ready group's own
// completion callback.
func (t *Table) checkAllReady() {
	if !t.phase.Is(PhaseWaiting) {
		return
	}
	eligible := t.chipPositivePlayers()
	if len(eligible) < 2 {
		return
	}
	for _, p := range eligible {
		if !p.IsReady {
			return
		}
	}
	t.post(t.onAllReady)
}

// rebuildReadyGroup rebuilds the readiness barrier over the current
// chip-positive seats. The group completes when every participant is
// ready, which triggers the Waiting -> Starting transition.
func (t *Table) rebuildReadyGroup() {
	if t.ready != nil {
		t.ready.Stop()
		t.ready = nil
	}
	if !t.phase.Is(PhaseWaiting) {
		return
	}

	eligible := t.chipPositivePlayers()
	if len(eligible) < 2 {
		return
	}

	rg := syncsaga.NewReadyGroup()
	rg.OnCompleted(func(*syncsaga.ReadyGroup) {
		t.post(t.onAllReady)
	})
	for _, p := range eligible {
		rg.Add(int64(p.Seat), p.IsReady)
	}
	t.ready = rg
	rg.Start()

	// Everyone may already be ready (hand-to-hand continuation).
	t.checkAllReady()
}

func (t *Table) onAllReady() {
	if !t.phase.Is(PhaseWaiting) || t.paused {
		return
	}
	eligible := t.chipPositivePlayers()
	if len(eligible) < 2 {
		return
	}
	for _, p := range eligible {
		if !p.IsReady {
			return
		}
	}

	t.mustTransition(PhaseStarting)
	t.broadcast()
	t.armPhaseTimer(t.cfg.Countdown, func() {
		if t.phase.Is(PhaseStarting) {
			t.startHand()
		}
	})
}

// ---- hand lifecycle ----

func (t *Table) startHand() {
	players := t.chipPositivePlayers()
	if len(players) < 2 {
		// Somebody left during the countdown.
		t.mustTransition(PhaseWaiting)
		t.rebuildReadyGroup()
		t.broadcast()
		return
	}

	t.mustTransition(PhaseDealing)

	t.handNum++
	t.handStarted = time.Now()
	t.actions = nil
	t.community = nil
	t.pots.Reset()
	t.currentBet = 0
	t.minRaise = t.cfg.BigBlind
	t.deck.Reset()

	for _, p := range players {
		p.ResetForHand()
	}

	if t.dealer < 0 {
		t.dealer = players[0].Seat
	}

	// Hole cards, two passes around the table.
	for pass := 0; pass < 2; pass++ {
		for _, p := range t.orderFromSeat(t.nextChipPositive(t.dealer)) {
			if p.Stack == 0 || p.Leaving {
				continue
			}
			cards, err := t.deck.Deal(1)
			if err != nil {
				t.fail("deal hole cards: %v", err)
				return
			}
			p.HoleCards = append(p.HoleCards, cards[0])
		}
	}

	// Blinds. Heads-up the dealer posts the small blind.
	sbSeat := t.nextChipPositive(t.dealer)
	if len(players) == 2 {
		sbSeat = t.dealer
	}
	bbSeat := t.nextChipPositive(sbSeat)

	sb := t.seats[sbSeat]
	posted := sb.commit(minInt64(t.cfg.SmallBlind, sb.Stack))
	t.pots.Add(sbSeat, posted)
	t.recordAction(sb, "SMALL_BLIND", posted)

	bb := t.seats[bbSeat]
	posted = bb.commit(minInt64(t.cfg.BigBlind, bb.Stack))
	t.pots.Add(bbSeat, posted)
	t.recordAction(bb, "BIG_BLIND", posted)

	// The big blind establishes the bet to match even when posted
	// short all-in.
	t.currentBet = t.cfg.BigBlind

	t.mustTransition(PhasePreFlop)
	t.acting = t.firstToAct(bbSeat)
	t.log.Debugf("table %s: hand %d dealt, dealer=%d sb=%d bb=%d acting=%d",
		t.cfg.ID, t.handNum, t.dealer, sbSeat, bbSeat, t.acting)
	t.broadcast()
	t.armTurnTimer()
}

// firstToAct returns the first seat able to act clockwise of the given
// seat, or -1 when no action is possible.
func (t *Table) firstToAct(after int) int {
	for _, p := range t.orderFromSeat(t.nextSeat(after)) {
		if p.CanAct() && p.inHand() {
			return p.Seat
		}
	}
	return -1
}

// ---- betting actions ----

func (t *Table) actionLocked(playerID string, action Action) error {
	if !t.phase.Current().bettingStreet() {
		return ErrInvalidAction
	}
	p := t.findPlayer(playerID)
	if p == nil {
		return ErrNotSeated
	}
	if t.acting < 0 || t.seats[t.acting] == nil || t.seats[t.acting].ID != playerID {
		return ErrNotYourTurn
	}
	if !p.CanAct() {
		return ErrInvalidAction
	}

	switch action.Type {
	case ActionFold:
		t.foldPlayer(p, "fold")

	case ActionCheck:
		if p.RoundBet != t.currentBet {
			return ErrInvalidAction
		}
		p.HasActed = true
		t.recordAction(p, "CHECK", 0)
		t.emitAction(p, "CHECK", 0)

	case ActionCall:
		if t.currentBet <= p.RoundBet {
			return ErrInvalidAction
		}
		committed := p.commit(t.currentBet - p.RoundBet)
		t.pots.Add(p.Seat, committed)
		p.HasActed = true
		t.recordAction(p, "CALL", committed)
		t.emitAction(p, "CALL", committed)

	case ActionRaise:
		total := action.Amount
		// A player still flagged as having acted faces only an
		// under-raise all-in; the action is not reopened for them.
		if p.HasActed ||
			total <= t.currentBet ||
			total-t.currentBet < t.minRaise ||
			total-p.RoundBet > p.Stack {
			return ErrInvalidAction
		}
		committed := p.commit(total - p.RoundBet)
		t.pots.Add(p.Seat, committed)
		t.minRaise = total - t.currentBet
		t.currentBet = total
		t.reopenAction(p)
		p.HasActed = true
		t.recordAction(p, "RAISE", total)
		t.emitAction(p, "RAISE", total)

	case ActionAllIn:
		if p.Stack == 0 {
			return ErrInvalidAction
		}
		if p.HasActed && p.RoundBet+p.Stack > t.currentBet {
			// Facing only an under-raise, an all-in may call but not raise.
			return ErrInvalidAction
		}
		committed := p.commit(p.Stack)
		t.pots.Add(p.Seat, committed)
		if p.RoundBet > t.currentBet {
			raisedBy := p.RoundBet - t.currentBet
			if raisedBy >= t.minRaise {
				// A full raise reopens the action.
				t.minRaise = raisedBy
				t.reopenAction(p)
			}
			// An under-raise all-in moves the bet to match without
			// reopening action for players who already acted.
			t.currentBet = p.RoundBet
		}
		p.HasActed = true
		t.recordAction(p, "ALL_IN", committed)
		t.emitAction(p, "ALL_IN", committed)

	default:
		return ErrInvalidAction
	}

	t.afterAction(p)
	return nil
}

// reopenAction clears the has-acted flag of every live opponent so
// they must act again.
func (t *Table) reopenAction(raiser *Player) {
	for _, p := range t.seats {
		if p == nil || p == raiser {
			continue
		}
		if p.CanAct() && p.inHand() {
			p.HasActed = false
		}
	}
}

func (t *Table) foldPlayer(p *Player, reason string) {
	p.HasFolded = true
	p.HasActed = true
	t.recordAction(p, "FOLD", 0)
	t.emitAction(p, "FOLD", 0)
	t.log.Debugf("table %s: %s folds (%s)", t.cfg.ID, p.ID, reason)
}

// afterAction cancels the acting player's turn timer, then either
// short-circuits the hand, closes the betting round, or passes the
// action clockwise.
func (t *Table) afterAction(actor *Player) {
	t.cancelTurnTimer()

	stillIn := t.stillInPlayers()
	if len(stillIn) == 1 {
		t.singleWinner(stillIn[0])
		return
	}

	if t.roundClosed(stillIn) {
		t.closeRound()
		return
	}

	prev := t.acting
	if actor.Seat == t.acting {
		t.acting = t.firstToAct(t.acting)
	}
	t.broadcast()
	if t.acting != prev {
		t.armTurnTimer()
	}
}

// roundClosed implements the closure rules: every still-in player who
// can act has acted and matched the bet, or nobody can act anymore.
func (t *Table) roundClosed(stillIn []*Player) bool {
	for _, p := range stillIn {
		if !p.CanAct() {
			continue
		}
		if !p.HasActed || p.RoundBet != t.currentBet {
			return false
		}
	}
	return true
}

// closeRound settles the street: resets per-round bets and advances to
// the next street or showdown. An uncalled overage is not refunded
// here; it surfaces at showdown as a pot only its contributor is
// eligible for, which distribution hands straight back.
func (t *Table) closeRound() {
	t.pots.ResetRound()
	for _, p := range t.seats {
		if p != nil {
			p.RoundBet = 0
			p.HasActed = false
		}
	}
	t.currentBet = 0
	t.minRaise = t.cfg.BigBlind
	t.acting = -1

	t.advanceStreet()
}

// advanceStreet deals the next street. When fewer than two still-in
// players can act, the remaining streets run out back-to-back into
// showdown.
func (t *Table) advanceStreet() {
	for {
		switch t.phase.Current() {
		case PhasePreFlop:
			if !t.dealCommunity(3) {
				return
			}
			t.mustTransition(PhaseFlop)
		case PhaseFlop:
			if !t.dealCommunity(1) {
				return
			}
			t.mustTransition(PhaseTurn)
		case PhaseTurn:
			if !t.dealCommunity(1) {
				return
			}
			t.mustTransition(PhaseRiver)
		case PhaseRiver:
			t.showdown()
			return
		default:
			t.fail("advanceStreet in phase %v", t.phase.Current())
			return
		}

		stillIn := t.stillInPlayers()
		actors := 0
		for _, p := range stillIn {
			if p.CanAct() {
				actors++
			}
		}
		if actors >= 2 {
			t.acting = t.firstToAct(t.dealer)
			t.broadcast()
			t.armTurnTimer()
			return
		}
		// No betting possible; publish the street and keep dealing.
		t.broadcast()
	}
}

// dealCommunity burns one card then deals k to the board. Returns
// false when the deck is exhausted, which is a programming error.
func (t *Table) dealCommunity(k int) bool {
	if err := t.deck.Burn(); err != nil {
		t.fail("burn: %v", err)
		return false
	}
	cards, err := t.deck.Deal(k)
	if err != nil {
		t.fail("deal community: %v", err)
		return false
	}
	t.community = append(t.community, cards...)
	return true
}

// ---- showdown, payout, banter ----

func (t *Table) showdown() {
	t.mustTransition(PhaseShowdownReveal)

	stillIn := t.stillInPlayers()
	scores := make(map[int]int32, len(stillIn))
	eligible := make(map[int]bool, len(stillIn))
	for _, p := range stillIn {
		seven := append(append([]Card{}, p.HoleCards...), t.community...)
		hv := EvaluateHand(seven)
		p.HandValue = &hv
		scores[p.Seat] = hv.Score
		eligible[p.Seat] = true
	}

	pots := t.pots.BuildPots(eligible)
	payouts := t.pots.Distribute(pots, scores, t.dealer, len(t.seats))

	result := &HandResult{TableID: t.cfg.ID}
	for _, pot := range pots {
		pr := PotRecord{Amount: pot.Amount}
		for _, seat := range pot.Eligible {
			pr.Eligible = append(pr.Eligible, t.seats[seat].ID)
		}
		result.Pots = append(result.Pots, pr)
	}
	seatsPaid := make([]int, 0, len(payouts))
	for seat := range payouts {
		seatsPaid = append(seatsPaid, seat)
	}
	sort.Ints(seatsPaid)
	for _, seat := range seatsPaid {
		p := t.seats[seat]
		p.Stack += payouts[seat]
		result.Winners = append(result.Winners, WinnerRecord{
			PlayerID: p.ID,
			Seat:     seat,
			Amount:   payouts[seat],
			Cards:    append([]Card{}, p.HoleCards...),
			HandRank: p.HandValue.Description,
		})
	}

	t.broadcast()
	if t.sink != nil {
		t.sink.HandResult(t.cfg.ID, result)
	}
	t.finishHand(result)
}

// singleWinner short-circuits the hand when all but one player folded.
// No evaluation, no reveal.
func (t *Table) singleWinner(winner *Player) {
	t.cancelTurnTimer()
	t.acting = -1

	total := t.pots.Total()
	winner.Stack += total

	result := &HandResult{
		TableID: t.cfg.ID,
		Winners: []WinnerRecord{{PlayerID: winner.ID, Seat: winner.Seat, Amount: total}},
		Pots:    []PotRecord{{Amount: total, Eligible: []string{winner.ID}}},
	}

	t.mustTransition(PhasePayoutAnimation)
	t.broadcast()
	if t.sink != nil {
		t.sink.HandResult(t.cfg.ID, result)
	}
	t.persistHand(result)
	t.schedulePayoutDone()
}

// finishHand runs after showdown distribution: persist, then walk the
// payout-animation and banter timers back to Waiting.
func (t *Table) finishHand(result *HandResult) {
	t.mustTransition(PhasePayoutAnimation)
	t.broadcast()
	t.persistHand(result)
	t.schedulePayoutDone()
}

func (t *Table) schedulePayoutDone() {
	t.armPhaseTimer(t.cfg.PayoutDelay, func() {
		if !t.phase.Is(PhasePayoutAnimation) {
			return
		}
		t.mustTransition(PhaseSocialBanter)
		t.broadcast()
		if t.sink != nil {
			t.sink.Banter(t.cfg.ID, banterPrompt(t.handNum))
		}
		t.armPhaseTimer(t.cfg.BanterDelay, t.banterDone)
	})
}

func (t *Table) banterDone() {
	if !t.phase.Is(PhaseSocialBanter) {
		return
	}
	t.mustTransition(PhaseWaiting)

	// Free seats of leavers and busted players, then advance the
	// dealer button one chip-positive seat clockwise. A paused table
	// keeps the button where it was.
	for i, p := range t.seats {
		if p == nil {
			continue
		}
		if p.Leaving || p.Stack == 0 {
			t.log.Infof("table %s: unseating %s (leaving=%v stack=%d)", t.cfg.ID, p.ID, p.Leaving, p.Stack)
			t.seats[i] = nil
		}
	}
	if !t.paused {
		t.dealer = t.nextChipPositive(t.dealer)
	}

	t.acting = -1
	t.community = nil
	t.pots.Reset()
	t.currentBet = 0

	t.rebuildReadyGroup()
	t.broadcast()
}

// banterPrompt picks a deterministic banter line for the social
// channel.
func banterPrompt(handNum uint64) string {
	prompts := []string{
		"Tough beat or easy money?",
		"Anyone want to show what they folded?",
		"The button never lies.",
		"Rebuy window is always open.",
	}
	return prompts[handNum%uint64(len(prompts))]
}

// ---- ledger persistence ----

func (t *Table) persistHand(result *HandResult) {
	record := &HandRecord{
		TableID:   t.cfg.ID,
		HandNum:   t.handNum,
		StartedAt: t.handStarted,
		EndedAt:   time.Now(),
		Community: append([]Card{}, t.community...),
		Pots:      result.Pots,
		Winners:   result.Winners,
		Actions:   t.actions,
		PotTotal:  t.pots.Total(),
	}

	deltas := make(map[string]int64)
	for _, p := range t.seats {
		if p == nil {
			continue
		}
		pr := HandPlayerRecord{
			PlayerID:      p.ID,
			Seat:          p.Seat,
			StartingStack: p.StartingStack,
			EndingStack:   p.Stack,
		}
		if !p.HasFolded {
			pr.FinalHoleCards = append([]Card{}, p.HoleCards...)
			if p.HandValue != nil {
				pr.HandRank = p.HandValue.Description
			}
		}
		record.Players = append(record.Players, pr)

		// Zero-sum ledger conservation: each delta is the player's
		// ending stack minus starting stack for the hand.
		if d := p.Stack - p.StartingStack; d != 0 {
			deltas[p.ID] = d
		}
	}

	if t.recorder == nil {
		return
	}
	if err := t.commitWithRetry(record, deltas); err != nil {
		t.log.Errorf("table %s: hand %d ledger commit failed: %v", t.cfg.ID, t.handNum, err)
		t.log.Tracef("table %s: failed record: %s", t.cfg.ID, spew.Sdump(record))
		t.paused = true
		t.pendingRecord = record
		t.pendingDeltas = deltas
		if t.sink != nil {
			t.sink.TableError(t.cfg.ID, "LEDGER_FAILURE", "hand settlement could not be persisted")
		}
	}
}

func (t *Table) commitWithRetry(record *HandRecord, deltas map[string]int64) error {
	var err error
	for attempt := 0; attempt < ledgerAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		err = t.recorder.CommitHand(ctx, record, deltas)
		cancel()
		if err == nil {
			return nil
		}
		t.log.Warnf("table %s: ledger commit attempt %d failed: %v", t.cfg.ID, attempt+1, err)
	}
	return err
}

func (t *Table) resumeLocked() error {
	if !t.paused {
		return nil
	}
	if t.pendingRecord != nil {
		if err := t.commitWithRetry(t.pendingRecord, t.pendingDeltas); err != nil {
			return err
		}
	}
	t.paused = false
	t.pendingRecord = nil
	t.pendingDeltas = nil
	t.rebuildReadyGroup()
	return nil
}

// ---- timers ----

func (t *Table) armTurnTimer() {
	if t.acting < 0 || t.cfg.TurnTimeout <= 0 {
		return
	}
	t.turnToken++
	token := t.turnToken
	t.turnTimer.Cancel()
	t.turnTimer = timebank.NewTimeBank()
	_ = t.turnTimer.NewTask(t.cfg.TurnTimeout, func(isCancelled bool) {
		if isCancelled {
			return
		}
		t.post(func() { t.onTurnTimeout(token) })
	})
}

func (t *Table) cancelTurnTimer() {
	t.turnToken++
	t.turnTimer.Cancel()
	t.turnTimer = timebank.NewTimeBank()
}

// onTurnTimeout auto-folds the acting player when the timer fires
// before an action arrives.
func (t *Table) onTurnTimeout(token int) {
	if token != t.turnToken || !t.phase.Current().bettingStreet() || t.acting < 0 {
		return
	}
	p := t.seats[t.acting]
	if p == nil || !p.CanAct() {
		return
	}
	t.log.Infof("table %s: seat %d timed out, auto-folding", t.cfg.ID, t.acting)
	t.foldPlayer(p, "timeout")
	t.afterAction(p)
}

func (t *Table) armPhaseTimer(d time.Duration, fn func()) {
	t.phaseTimer.Cancel()
	t.phaseTimer = timebank.NewTimeBank()
	if d <= 0 {
		// Zero duration still defers through the queue so observers
		// see the phase before it advances.
		t.post(fn)
		return
	}
	_ = t.phaseTimer.NewTask(d, func(isCancelled bool) {
		if isCancelled {
			return
		}
		t.post(fn)
	})
}

// ---- helpers ----

func (t *Table) findPlayer(playerID string) *Player {
	for _, p := range t.seats {
		if p != nil && p.ID == playerID {
			return p
		}
	}
	return nil
}

// chipPositivePlayers returns seated players with chips, seat order.
func (t *Table) chipPositivePlayers() []*Player {
	var out []*Player
	for _, p := range t.seats {
		if p != nil && p.Stack > 0 && !p.Leaving {
			out = append(out, p)
		}
	}
	return out
}

// stillInPlayers returns players contesting the current hand.
func (t *Table) stillInPlayers() []*Player {
	var out []*Player
	for _, p := range t.seats {
		if p != nil && p.inHand() && p.StillIn() {
			out = append(out, p)
		}
	}
	return out
}

// inHand reports whether the binding was dealt into the current hand.
func (p *Player) inHand() bool {
	return len(p.HoleCards) == 2
}

// nextSeat returns the next seat index clockwise, occupied or not.
func (t *Table) nextSeat(seat int) int {
	return (seat + 1) % len(t.seats)
}

// nextChipPositive returns the next chip-positive occupied seat
// clockwise of the given seat.
func (t *Table) nextChipPositive(seat int) int {
	for i := 1; i <= len(t.seats); i++ {
		idx := (seat + i) % len(t.seats)
		p := t.seats[idx]
		if p != nil && p.Stack > 0 && !p.Leaving {
			return idx
		}
	}
	return seat
}

// orderFromSeat returns occupied seats in clockwise order starting at
// the given seat.
func (t *Table) orderFromSeat(start int) []*Player {
	var out []*Player
	for i := 0; i < len(t.seats); i++ {
		idx := (start + i) % len(t.seats)
		if t.seats[idx] != nil {
			out = append(out, t.seats[idx])
		}
	}
	return out
}

func (t *Table) recordAction(p *Player, action string, amount int64) {
	t.actions = append(t.actions, HandAction{
		Seat:     p.Seat,
		PlayerID: p.ID,
		Action:   action,
		Amount:   amount,
		Street:   t.phase.Current().String(),
	})
}

func (t *Table) emitAction(p *Player, action string, amount int64) {
	if t.sink != nil {
		t.sink.PlayerAction(t.cfg.ID, p.ID, action, amount, t.pots.Total())
	}
}

// mustTransition applies a transition that the state machine's own
// logic guarantees is legal; failure is a programming error.
func (t *Table) mustTransition(to Phase) {
	if err := t.phase.Transition(to); err != nil {
		t.fail("%v", err)
	}
}

// fail handles a programming error: it logs loudly, pauses the table
// and reports an INTERNAL table error to the sink. Nothing recreates
// the table; it stays paused until Resume.
func (t *Table) fail(format string, args ...interface{}) {
	t.log.Errorf("table %s: FATAL: "+format, append([]interface{}{t.cfg.ID}, args...)...)
	t.paused = true
	if t.sink != nil {
		t.sink.TableError(t.cfg.ID, "INTERNAL", fmt.Sprintf(format, args...))
	}
}

// broadcast bumps the sequence counter and hands a fresh god snapshot
// to the sink. Every mutation visible to any viewer routes through
// here, which is what makes the counter strictly monotone per table.
func (t *Table) broadcast() {
	t.seq++
	if t.sink != nil {
		t.sink.StateChanged(t.godState())
	}
}

// godState copies the complete authoritative state. The deck is not
// part of the copy; it never leaves the table.
func (t *Table) godState() *GodState {
	god := &GodState{
		TableID:    t.cfg.ID,
		Phase:      t.phase.Current(),
		Sequence:   t.seq,
		HandNum:    t.handNum,
		Community:  append([]Card{}, t.community...),
		Pot:        t.pots.Total(),
		CurrentBet: t.currentBet,
		MinRaise:   t.minRaise,
		Dealer:     t.dealer,
		Acting:     t.acting,
	}
	for _, p := range t.seats {
		if p == nil {
			continue
		}
		gp := GodPlayer{
			Seat:      p.Seat,
			ID:        p.ID,
			Name:      p.Name,
			Stack:     p.Stack,
			RoundBet:  p.RoundBet,
			Folded:    p.HasFolded,
			AllIn:     p.IsAllIn,
			Ready:     p.IsReady,
			HoleCards: append([]Card{}, p.HoleCards...),
		}
		if p.HandValue != nil {
			gp.HandDesc = p.HandValue.Description
		}
		god.Players = append(god.Players, gp)
	}
	return god
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
