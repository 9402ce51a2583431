package poker

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	mrand "math/rand"
)

// ErrDeckExhausted is returned when a deal or burn is requested and not
// enough undealt cards remain.
var ErrDeckExhausted = errors.New("poker: deck exhausted")

// Deck represents an ordered 52-card deck with a pointer to the next
// undealt card. Exactly one deck exists per table per hand; Reset
// rebuilds and reshuffles it at hand start.
type Deck struct {
	cards []Card
	next  int
	rng   *mrand.Rand
}

// cryptoSource adapts crypto/rand to math/rand's Source64 so the
// shuffle can run on a cryptographically strong stream in production
// while tests inject a fixed seed.
type cryptoSource struct{}

func (cryptoSource) Seed(int64) {}

func (s cryptoSource) Int63() int64 {
	return int64(s.Uint64() &^ (1 << 63))
}

func (cryptoSource) Uint64() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure means the host's entropy source is
		// broken; there is no sane way to continue dealing cards.
		panic("poker: crypto/rand failed: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// NewDeck creates a deck using the given random number generator.
// Pass a seeded generator for deterministic tests.
func NewDeck(rng *mrand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	d.Reset()
	return d
}

// NewCryptoDeck creates a deck whose shuffle draws from crypto/rand.
// This is the only constructor production code should use.
func NewCryptoDeck() *Deck {
	return NewDeck(mrand.New(cryptoSource{}))
}

// Reset reinitialises the deck to the canonical 52-card sequence and
// applies a uniform in-place permutation.
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	suits := []Suit{Hearts, Diamonds, Clubs, Spades}
	ranks := []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}
	for _, suit := range suits {
		for _, rank := range ranks {
			d.cards = append(d.cards, Card{rank: rank, suit: suit})
		}
	}
	d.next = 0
	d.shuffle()
}

// shuffle performs a Fisher-Yates permutation over the full deck.
func (d *Deck) shuffle() {
	for i := len(d.cards) - 1; i >= 1; i-- {
		j := d.rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal returns the next k cards and advances the pointer.
func (d *Deck) Deal(k int) ([]Card, error) {
	if d.Remaining() < k {
		return nil, ErrDeckExhausted
	}
	out := make([]Card, k)
	copy(out, d.cards[d.next:d.next+k])
	d.next += k
	return out, nil
}

// Burn discards the next card.
func (d *Deck) Burn() error {
	if d.Remaining() < 1 {
		return ErrDeckExhausted
	}
	d.next++
	return nil
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}
