package poker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// GodState is a point-in-time copy of a table's complete authoritative
// state, produced only by the table's own run loop. It deliberately
// has no deck field: the undealt deck never leaves the table, so no
// projection can leak it.
type GodState struct {
	TableID    string
	Phase      Phase
	Sequence   uint64
	HandNum    uint64
	Community  []Card
	Pot        int64
	CurrentBet int64
	MinRaise   int64
	Dealer     int
	Acting     int
	Players    []GodPlayer
}

// GodPlayer is the complete per-binding state inside a GodState.
type GodPlayer struct {
	Seat      int
	ID        string
	Name      string
	Stack     int64
	RoundBet  int64
	Folded    bool
	AllIn     bool
	Ready     bool
	HoleCards []Card
	HandDesc  string
}

// HoleCardsView is a player's hole-card slot as seen by one viewer:
// either the explicit "hidden" marker or the actual cards.
type HoleCardsView struct {
	Hidden bool
	Cards  []Card
}

// MarshalJSON renders the slot as the string "hidden" or a card array.
func (h HoleCardsView) MarshalJSON() ([]byte, error) {
	if h.Hidden {
		return json.Marshal("hidden")
	}
	if h.Cards == nil {
		return json.Marshal([]Card{})
	}
	return json.Marshal(h.Cards)
}

// UnmarshalJSON accepts both renderings so a serialized view
// deserializes to an identical value.
func (h *HoleCardsView) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`"hidden"`)) {
		h.Hidden = true
		h.Cards = nil
		return nil
	}
	h.Hidden = false
	cards := []Card{}
	if err := json.Unmarshal(data, &cards); err != nil {
		return fmt.Errorf("hole-card slot: %w", err)
	}
	if len(cards) > 0 {
		h.Cards = cards
	}
	return nil
}

// PlayerView is the sanitized per-player projection.
type PlayerView struct {
	Seat      int           `json:"seat"`
	PlayerID  string        `json:"playerId"`
	Name      string        `json:"name"`
	Stack     int64         `json:"stack"`
	Bet       int64         `json:"bet"`
	Folded    bool          `json:"folded"`
	AllIn     bool          `json:"allIn"`
	Ready     bool          `json:"ready"`
	HoleCards HoleCardsView `json:"holeCards"`
	HandDesc  string        `json:"handRank,omitempty"`
}

// TableView is the sanitized snapshot delivered to one recipient.
type TableView struct {
	TableID    string       `json:"tableId"`
	Phase      string       `json:"phase"`
	SequenceID uint64       `json:"sequenceId"`
	HandNum    uint64       `json:"handNum"`
	Community  []Card       `json:"communityCards"`
	Pot        int64        `json:"pot"`
	CurrentBet int64        `json:"currentBet"`
	MinRaise   int64        `json:"minRaise"`
	DealerSeat int          `json:"dealerSeat"`
	ActingSeat int          `json:"actingSeat"`
	Players    []PlayerView `json:"players"`
}

// PlayerPatch carries only the changed fields of one seat.
type PlayerPatch struct {
	Seat      int            `json:"seat"`
	Stack     *int64         `json:"stack,omitempty"`
	Bet       *int64         `json:"bet,omitempty"`
	Folded    *bool          `json:"folded,omitempty"`
	AllIn     *bool          `json:"allIn,omitempty"`
	Ready     *bool          `json:"ready,omitempty"`
	HoleCards *HoleCardsView `json:"holeCards,omitempty"`
	HandDesc  *string        `json:"handRank,omitempty"`
	Joined    *PlayerView    `json:"joined,omitempty"`
	Removed   bool           `json:"removed,omitempty"`
}

// ViewPatch is an incremental delta between two views for one
// recipient. SequenceID is always present and strictly greater than
// the last delivered one.
type ViewPatch struct {
	SequenceID uint64        `json:"sequenceId"`
	Phase      *string       `json:"phase,omitempty"`
	Community  *[]Card       `json:"communityCards,omitempty"`
	Pot        *int64        `json:"pot,omitempty"`
	CurrentBet *int64        `json:"currentBet,omitempty"`
	MinRaise   *int64        `json:"minRaise,omitempty"`
	DealerSeat *int          `json:"dealerSeat,omitempty"`
	ActingSeat *int          `json:"actingSeat,omitempty"`
	Players    []PlayerPatch `json:"players,omitempty"`
}

// showdownPhase reports whether hole cards of still-in players are
// public in the given phase.
func showdownPhase(p Phase) bool {
	return p == PhaseShowdownReveal || p == PhasePayoutAnimation
}

// PersonalView projects the god state into the sanitized view for one
// recipient. The recipient sees their own hole cards; every other
// seat's slot carries the "hidden" marker except at showdown, where
// still-in players' cards are public.
func PersonalView(god *GodState, viewerID string) TableView {
	view := TableView{
		TableID:    god.TableID,
		Phase:      god.Phase.String(),
		SequenceID: god.Sequence,
		HandNum:    god.HandNum,
		Community:  append([]Card{}, god.Community...),
		Pot:        god.Pot,
		CurrentBet: god.CurrentBet,
		MinRaise:   god.MinRaise,
		DealerSeat: god.Dealer,
		ActingSeat: god.Acting,
		Players:    make([]PlayerView, 0, len(god.Players)),
	}

	reveal := showdownPhase(god.Phase)
	for _, p := range god.Players {
		pv := PlayerView{
			Seat:     p.Seat,
			PlayerID: p.ID,
			Name:     p.Name,
			Stack:    p.Stack,
			Bet:      p.RoundBet,
			Folded:   p.Folded,
			AllIn:    p.AllIn,
			Ready:    p.Ready,
		}
		switch {
		case p.ID == viewerID:
			pv.HoleCards = HoleCardsView{Cards: append([]Card{}, p.HoleCards...)}
		case reveal && !p.Folded:
			pv.HoleCards = HoleCardsView{Cards: append([]Card{}, p.HoleCards...)}
			pv.HandDesc = p.HandDesc
		default:
			pv.HoleCards = HoleCardsView{Hidden: true}
		}
		if p.ID == viewerID && reveal && !p.Folded {
			pv.HandDesc = p.HandDesc
		}
		view.Players = append(view.Players, pv)
	}

	return view
}

// Delta computes the incremental patch between two god states as seen
// by one recipient. Only changed public fields are included, plus the
// recipient's own hole-card slot iff it changed. The new sequence
// counter is always included.
func Delta(old, cur *GodState, viewerID string) ViewPatch {
	oldView := PersonalView(old, viewerID)
	newView := PersonalView(cur, viewerID)

	patch := ViewPatch{SequenceID: newView.SequenceID}

	if oldView.Phase != newView.Phase {
		patch.Phase = &newView.Phase
	}
	if len(oldView.Community) != len(newView.Community) {
		// A pointer distinguishes "board cleared" from "unchanged".
		patch.Community = &newView.Community
	}
	if oldView.Pot != newView.Pot {
		patch.Pot = &newView.Pot
	}
	if oldView.CurrentBet != newView.CurrentBet {
		patch.CurrentBet = &newView.CurrentBet
	}
	if oldView.MinRaise != newView.MinRaise {
		patch.MinRaise = &newView.MinRaise
	}
	if oldView.DealerSeat != newView.DealerSeat {
		patch.DealerSeat = &newView.DealerSeat
	}
	if oldView.ActingSeat != newView.ActingSeat {
		patch.ActingSeat = &newView.ActingSeat
	}

	oldBySeat := make(map[int]PlayerView, len(oldView.Players))
	for _, p := range oldView.Players {
		oldBySeat[p.Seat] = p
	}
	newSeats := make(map[int]bool, len(newView.Players))

	for i := range newView.Players {
		np := newView.Players[i]
		newSeats[np.Seat] = true
		op, existed := oldBySeat[np.Seat]
		if !existed || op.PlayerID != np.PlayerID {
			joined := np
			patch.Players = append(patch.Players, PlayerPatch{Seat: np.Seat, Joined: &joined})
			continue
		}
		pp := PlayerPatch{Seat: np.Seat}
		changed := false
		if op.Stack != np.Stack {
			pp.Stack = &np.Stack
			changed = true
		}
		if op.Bet != np.Bet {
			pp.Bet = &np.Bet
			changed = true
		}
		if op.Folded != np.Folded {
			pp.Folded = &np.Folded
			changed = true
		}
		if op.AllIn != np.AllIn {
			pp.AllIn = &np.AllIn
			changed = true
		}
		if op.Ready != np.Ready {
			pp.Ready = &np.Ready
			changed = true
		}
		if op.HandDesc != np.HandDesc {
			pp.HandDesc = &np.HandDesc
			changed = true
		}
		if !holeCardsEqual(op.HoleCards, np.HoleCards) {
			hc := np.HoleCards
			pp.HoleCards = &hc
			changed = true
		}
		if changed {
			patch.Players = append(patch.Players, pp)
		}
	}

	for seat := range oldBySeat {
		if !newSeats[seat] {
			patch.Players = append(patch.Players, PlayerPatch{Seat: seat, Removed: true})
		}
	}
	sort.Slice(patch.Players, func(i, j int) bool {
		return patch.Players[i].Seat < patch.Players[j].Seat
	})

	return patch
}

func holeCardsEqual(a, b HoleCardsView) bool {
	if a.Hidden != b.Hidden || len(a.Cards) != len(b.Cards) {
		return false
	}
	for i := range a.Cards {
		if a.Cards[i] != b.Cards[i] {
			return false
		}
	}
	return true
}

// Validate checks the sanitization invariant on a view issued to the
// given recipient: in any non-showdown phase every other seat's
// hole-card slot must be hidden, and no rendering of the view may
// contain a deck.
func Validate(view TableView, viewerID string) bool {
	reveal := view.Phase == PhaseShowdownReveal.String() ||
		view.Phase == PhasePayoutAnimation.String()

	for _, p := range view.Players {
		if p.PlayerID == viewerID {
			continue
		}
		if reveal && !p.Folded {
			continue
		}
		if !p.HoleCards.Hidden {
			return false
		}
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return false
	}
	return !bytes.Contains(raw, []byte(`"deck"`))
}
