// internal/deck/deck.go
package deck

import (
	"errors"
	"math/rand"

	"github.com/kwadwoansah/spar/internal/models"
)

// ErrDeckExhausted is returned when a deal asks for more cards than the deck
// holds. With the join cap at 7 players this cannot happen from normal play;
// hitting it means the deck itself was malformed.
var ErrDeckExhausted = errors.New("deck exhausted")

// Size is the number of cards in a Spar deck: 4 suits x 9 ranks, minus the
// Ace of Spades.
const Size = 35

// New builds the 35-card Spar deck in suit/rank order. Shuffle before
// dealing.
func New() []models.Card {
	cards := make([]models.Card, 0, Size)
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			if suit == models.Spades && rank == "A" {
				continue
			}
			cards = append(cards, models.Card{Suit: suit, Rank: rank})
		}
	}
	return cards
}

// Shuffle permutes cards in place using the supplied source. Taking an
// explicit *rand.Rand keeps shuffles reproducible under test; there is no
// hidden global randomness.
func Shuffle(cards []models.Card, rng *rand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Deal pops cards off the top of the deck (the end of the slice) and
// distributes them round-robin, one at a time, starting at seat lead. It
// returns the hands in seat order plus the undealt remainder.
func Deal(cards []models.Card, numPlayers, perPlayer, lead int) ([][]models.Card, []models.Card, error) {
	need := numPlayers * perPlayer
	if need > len(cards) {
		return nil, nil, ErrDeckExhausted
	}

	hands := make([][]models.Card, numPlayers)
	for i := range hands {
		hands[i] = make([]models.Card, 0, perPlayer)
	}

	top := len(cards)
	for i := 0; i < perPlayer; i++ {
		for j := 0; j < numPlayers; j++ {
			seat := (lead + j) % numPlayers
			top--
			hands[seat] = append(hands[seat], cards[top])
		}
	}
	return hands, cards[:top], nil
}
