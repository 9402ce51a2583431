package poker

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleGod(phase Phase) *GodState {
	return &GodState{
		TableID:    "t1",
		Phase:      phase,
		Sequence:   7,
		HandNum:    1,
		Community:  hand("2H", "7D", "KS"),
		Pot:        120,
		CurrentBet: 40,
		MinRaise:   20,
		Dealer:     0,
		Acting:     1,
		Players: []GodPlayer{
			{Seat: 0, ID: "p1", Name: "one", Stack: 900, RoundBet: 40, HoleCards: hand("AS", "AH")},
			{Seat: 1, ID: "p2", Name: "two", Stack: 880, RoundBet: 20, HoleCards: hand("KD", "KC")},
			{Seat: 2, ID: "p3", Name: "three", Stack: 1000, Folded: true, HoleCards: hand("2C", "3C")},
		},
	}
}

func TestPersonalViewHidesOpponents(t *testing.T) {
	god := sampleGod(PhasePreFlop)
	view := PersonalView(god, "p1")

	require.Equal(t, uint64(7), view.SequenceID)

	for _, p := range view.Players {
		if p.PlayerID == "p1" {
			require.False(t, p.HoleCards.Hidden)
			require.Len(t, p.HoleCards.Cards, 2)
			continue
		}
		require.True(t, p.HoleCards.Hidden, "player %s must be hidden", p.PlayerID)
		require.Nil(t, p.HoleCards.Cards)
	}

	require.True(t, Validate(view, "p1"))
}

func TestViewNeverContainsDeck(t *testing.T) {
	for _, phase := range []Phase{PhaseWaiting, PhasePreFlop, PhaseRiver, PhaseShowdownReveal} {
		raw, err := json.Marshal(PersonalView(sampleGod(phase), "p2"))
		require.NoError(t, err)
		require.NotContains(t, strings.ToLower(string(raw)), `"deck"`)
	}
}

func TestShowdownRevealsOnlyStillIn(t *testing.T) {
	god := sampleGod(PhaseShowdownReveal)
	view := PersonalView(god, "p1")

	for _, p := range view.Players {
		switch p.PlayerID {
		case "p3": // folded
			require.True(t, p.HoleCards.Hidden, "folded player stays hidden at showdown")
		default:
			require.False(t, p.HoleCards.Hidden)
		}
	}
	require.True(t, Validate(view, "p1"))
}

func TestViewRoundTripStability(t *testing.T) {
	view := PersonalView(sampleGod(PhasePreFlop), "p2")

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded TableView
	require.NoError(t, json.Unmarshal(raw, &decoded))

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(again))
}

func TestDeltaCarriesOnlyChanges(t *testing.T) {
	old := sampleGod(PhasePreFlop)
	next := sampleGod(PhasePreFlop)
	next.Sequence = 8
	next.Pot = 160
	next.Players = append([]GodPlayer{}, old.Players...)
	next.Players[1] = old.Players[1]
	next.Players[1].Stack = 840
	next.Players[1].RoundBet = 40

	patch := Delta(old, next, "p1")

	require.Equal(t, uint64(8), patch.SequenceID)
	require.Nil(t, patch.Phase)
	require.NotNil(t, patch.Pot)
	require.Equal(t, int64(160), *patch.Pot)
	require.Len(t, patch.Players, 1)
	require.Equal(t, 1, patch.Players[0].Seat)
	require.NotNil(t, patch.Players[0].Stack)
	require.Equal(t, int64(840), *patch.Players[0].Stack)
	require.Nil(t, patch.Players[0].HoleCards, "opponent hole cards did not change")
}

func TestDeltaIncludesOwnHoleCardsWhenDealt(t *testing.T) {
	old := sampleGod(PhaseWaiting)
	for i := range old.Players {
		old.Players[i].HoleCards = nil
	}
	next := sampleGod(PhasePreFlop)
	next.Sequence = 9

	patch := Delta(old, next, "p2")

	var own *PlayerPatch
	for i := range patch.Players {
		if patch.Players[i].Seat == 1 {
			own = &patch.Players[i]
		}
	}
	require.NotNil(t, own)
	require.NotNil(t, own.HoleCards)
	require.False(t, own.HoleCards.Hidden)
	require.Len(t, own.HoleCards.Cards, 2)
}

func TestDeltaSequenceAlwaysPresent(t *testing.T) {
	god := sampleGod(PhasePreFlop)
	same := *god
	same.Sequence = 8

	patch := Delta(god, &same, "p1")
	require.Equal(t, uint64(8), patch.SequenceID)
	require.Empty(t, patch.Players)
}
