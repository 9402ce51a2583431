package poker

import (
	"encoding/json"
	"fmt"
)

// Suit represents a card suit
type Suit string

const (
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
	Spades   Suit = "S"
)

// Rank represents a card rank
type Rank string

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "T"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Card represents a playing card. Cards are value types; equality is
// structural.
type Card struct {
	rank Rank
	suit Suit
}

// NewCard creates a card with the given rank and suit.
func NewCard(rank Rank, suit Suit) Card {
	return Card{rank: rank, suit: suit}
}

// CardJSON represents a card for JSON serialization
type CardJSON struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// MarshalJSON implements json.Marshaler interface for Card
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(CardJSON{
		Rank: string(c.rank),
		Suit: string(c.suit),
	})
}

// UnmarshalJSON implements json.Unmarshaler interface for Card
func (c *Card) UnmarshalJSON(data []byte) error {
	var cardJSON CardJSON
	if err := json.Unmarshal(data, &cardJSON); err != nil {
		return err
	}

	switch cardJSON.Suit {
	case "H", "h", "hearts", "Hearts", "♥":
		c.suit = Hearts
	case "D", "d", "diamonds", "Diamonds", "♦":
		c.suit = Diamonds
	case "C", "c", "clubs", "Clubs", "♣":
		c.suit = Clubs
	case "S", "s", "spades", "Spades", "♠":
		c.suit = Spades
	default:
		return fmt.Errorf("invalid suit: %s", cardJSON.Suit)
	}

	switch cardJSON.Rank {
	case "A", "a", "ace", "Ace":
		c.rank = Ace
	case "K", "k", "king", "King":
		c.rank = King
	case "Q", "q", "queen", "Queen":
		c.rank = Queen
	case "J", "j", "jack", "Jack":
		c.rank = Jack
	case "T", "t", "10", "ten", "Ten":
		c.rank = Ten
	case "9", "nine", "Nine":
		c.rank = Nine
	case "8", "eight", "Eight":
		c.rank = Eight
	case "7", "seven", "Seven":
		c.rank = Seven
	case "6", "six", "Six":
		c.rank = Six
	case "5", "five", "Five":
		c.rank = Five
	case "4", "four", "Four":
		c.rank = Four
	case "3", "three", "Three":
		c.rank = Three
	case "2", "two", "Two":
		c.rank = Two
	default:
		return fmt.Errorf("invalid rank: %s", cardJSON.Rank)
	}

	return nil
}

// String returns a string representation of the card, e.g. "AS" or "TH".
func (c Card) String() string {
	return string(c.rank) + string(c.suit)
}

// GetRank returns the card's rank
func (c Card) GetRank() Rank {
	return c.rank
}

// GetSuit returns the card's suit
func (c Card) GetSuit() Suit {
	return c.suit
}

// FormatCards is a helper for displaying a card slice in logs.
func FormatCards(cards []Card) string {
	if len(cards) == 0 {
		return "none"
	}
	s := ""
	for i, c := range cards {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s
}
