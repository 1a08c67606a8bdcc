// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is one seat in a room. The ID comes from the identity provider and
// is opaque to the game; Score persists across rounds within a game, Hand is
// rebuilt every round.
type Player struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score int       `json:"score"`
	Hand  []Card    `json:"hand"`
}

// HasCard reports whether the player holds the given card.
func (p *Player) HasCard(card Card) bool {
	for _, c := range p.Hand {
		if c == card {
			return true
		}
	}
	return false
}

// HasSuit reports whether the player holds any card of the given suit.
func (p *Player) HasSuit(suit Suit) bool {
	for _, c := range p.Hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// RemoveCard deletes the first occurrence of card from the hand, preserving
// order, and reports whether it was present.
func (p *Player) RemoveCard(card Card) bool {
	for i, c := range p.Hand {
		if c == card {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return true
		}
	}
	return false
}
