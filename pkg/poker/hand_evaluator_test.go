package poker

import (
	"testing"
)

func hand(specs ...string) []Card {
	cards := make([]Card, 0, len(specs))
	for _, s := range specs {
		cards = append(cards, NewCard(Rank(s[:1]), Suit(s[1:])))
	}
	return cards
}

func TestEvaluateCategories(t *testing.T) {
	tests := []struct {
		name  string
		cards []Card
		want  HandCategory
	}{
		{
			name:  "royal flush",
			cards: hand("AS", "KS", "QS", "JS", "TS", "2H", "3D"),
			want:  RoyalFlush,
		},
		{
			name:  "straight flush",
			cards: hand("9S", "8S", "7S", "6S", "5S", "2H", "3D"),
			want:  StraightFlush,
		},
		{
			name:  "four of a kind",
			cards: hand("AS", "AH", "AD", "AC", "5S", "2H", "3D"),
			want:  FourOfAKind,
		},
		{
			name:  "full house",
			cards: hand("AS", "AH", "AD", "KC", "KS", "2H", "3D"),
			want:  FullHouse,
		},
		{
			name:  "flush",
			cards: hand("AS", "JS", "8S", "6S", "3S", "2H", "KD"),
			want:  Flush,
		},
		{
			name:  "straight",
			cards: hand("9S", "8H", "7D", "6C", "5S", "2H", "KD"),
			want:  Straight,
		},
		{
			name:  "wheel straight",
			cards: hand("AS", "2H", "3D", "4C", "5S", "9H", "KD"),
			want:  Straight,
		},
		{
			name:  "three of a kind",
			cards: hand("AS", "AH", "AD", "9C", "5S", "2H", "KD"),
			want:  ThreeOfAKind,
		},
		{
			name:  "two pair",
			cards: hand("AS", "AH", "KD", "KC", "5S", "2H", "9D"),
			want:  TwoPair,
		},
		{
			name:  "pair",
			cards: hand("AS", "AH", "KD", "QC", "5S", "2H", "9D"),
			want:  Pair,
		},
		{
			name:  "high card",
			cards: hand("AS", "JH", "9D", "7C", "5S", "3H", "2D"),
			want:  HighCard,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hv := EvaluateHand(tc.cards)
			if hv.Category != tc.want {
				t.Errorf("category = %v, want %v (%s)", hv.Category, tc.want, hv.Description)
			}
			if len(hv.Best) != 5 {
				t.Errorf("witness must be 5 cards, got %d", len(hv.Best))
			}
		})
	}
}

func TestWheelLosesToSixHighStraight(t *testing.T) {
	wheel := EvaluateHand(hand("AS", "2H", "3D", "4C", "5S", "9H", "KD"))
	sixHigh := EvaluateHand(hand("2S", "3H", "4D", "5C", "6S", "9H", "KD"))

	if CompareHands(sixHigh, wheel) != 1 {
		t.Errorf("6-high straight must beat the wheel: %d vs %d", sixHigh.Score, wheel.Score)
	}
}

func TestScoreTotalOrder(t *testing.T) {
	// Ascending by strength; every later hand must strictly outscore
	// every earlier one.
	ladder := [][]Card{
		hand("AS", "JH", "9D", "7C", "5S", "3H", "2D"), // high card
		hand("AS", "AH", "KD", "QC", "5S", "2H", "9D"), // pair
		hand("AS", "AH", "KD", "KC", "5S", "2H", "9D"), // two pair
		hand("AS", "AH", "AD", "9C", "5S", "2H", "KD"), // trips
		hand("9S", "8H", "7D", "6C", "5S", "2H", "KD"), // straight
		hand("AS", "JS", "8S", "6S", "3S", "2H", "KD"), // flush
		hand("AS", "AH", "AD", "KC", "KS", "2H", "3D"), // full house
		hand("AS", "AH", "AD", "AC", "5S", "2H", "3D"), // quads
		hand("9S", "8S", "7S", "6S", "5S", "2H", "3D"), // straight flush
		hand("AS", "KS", "QS", "JS", "TS", "2H", "3D"), // royal flush
	}

	prev := EvaluateHand(ladder[0])
	for i := 1; i < len(ladder); i++ {
		cur := EvaluateHand(ladder[i])
		if cur.Score <= prev.Score {
			t.Errorf("ladder step %d: score %d not above %d", i, cur.Score, prev.Score)
		}
		prev = cur
	}
}

func TestKickerBreaksTie(t *testing.T) {
	aceKicker := EvaluateHand(hand("KS", "KH", "AD", "9C", "5S", "3H", "2D"))
	queenKicker := EvaluateHand(hand("KD", "KC", "QD", "9H", "5D", "3C", "2H"))

	if CompareHands(aceKicker, queenKicker) != 1 {
		t.Errorf("ace kicker must win: %d vs %d", aceKicker.Score, queenKicker.Score)
	}
}

func TestTrueTieScoresEqual(t *testing.T) {
	// Same board plays for both; different irrelevant hole cards.
	a := EvaluateHand(hand("2H", "3D", "AS", "KS", "QS", "JS", "TS"))
	b := EvaluateHand(hand("4C", "6D", "AS", "KS", "QS", "JS", "TS"))

	if CompareHands(a, b) != 0 {
		t.Errorf("identical best hands must tie: %d vs %d", a.Score, b.Score)
	}
}

func TestEvaluatePanicsOnWrongCardinality(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for 5-card input")
		}
	}()
	EvaluateHand(hand("AS", "KS", "QS", "JS", "TS"))
}
