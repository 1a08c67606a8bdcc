// internal/models/card.go
package models

import "fmt"

// Suit is a single-letter suit code, matching the wire format ("H9", "S10").
type Suit string

const (
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
	Spades   Suit = "S"
)

// Rank is the card rank as printed: "6".."10", "J", "Q", "K", "A".
type Rank string

// Suits lists the four suits in display order.
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Ranks lists all ranks used in Spar, lowest first.
var Ranks = []Rank{"6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// rankValues gives the strict total order used for trick comparison.
var rankValues = map[Rank]int{
	"6": 6, "7": 7, "8": 8, "9": 9, "10": 10,
	"J": 11, "Q": 12, "K": 13, "A": 14,
}

// Card is an immutable (suit, rank) value. The Ace of Spades does not exist
// in the Spar deck; deck construction skips it.
type Card struct {
	Suit Suit
	Rank Rank
}

// Value returns the comparison value of the card's rank, or 0 for an
// unknown rank.
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// String renders the compact wire form, suit letter first: "H9", "S10".
func (c Card) String() string {
	return string(c.Suit) + string(c.Rank)
}

// ParseCard decodes the compact wire form back into a Card.
func ParseCard(s string) (Card, error) {
	if len(s) < 2 {
		return Card{}, fmt.Errorf("malformed card %q", s)
	}
	c := Card{Suit: Suit(s[:1]), Rank: Rank(s[1:])}
	switch c.Suit {
	case Hearts, Diamonds, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("unknown suit in card %q", s)
	}
	if _, ok := rankValues[c.Rank]; !ok {
		return Card{}, fmt.Errorf("unknown rank in card %q", s)
	}
	return c, nil
}

// MarshalJSON encodes the card as its wire string.
func (c Card) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes the wire string form.
func (c *Card) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("card must be a JSON string, got %s", data)
	}
	parsed, err := ParseCard(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
