// internal/game/trick.go
package game

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kwadwoansah/spar/internal/models"
)

// ValidatePlay checks a card play against the turn and suit-following rules.
// currentTurn is the room's currentPlayerId; leadSuit is empty when the trick
// is open. It mutates nothing.
func ValidatePlay(p *models.Player, card models.Card, leadSuit models.Suit, currentTurn uuid.UUID) error {
	if p.ID != currentTurn {
		return ErrNotYourTurn
	}
	if !p.HasCard(card) {
		return ErrCardNotInHand
	}
	if leadSuit != "" && card.Suit != leadSuit && p.HasSuit(leadSuit) {
		return ErrMustFollowSuit
	}
	return nil
}

// ResolveTrick returns the winner of a completed trick: the highest-ranked
// card matching the lead suit. Ties are impossible since no card is
// duplicated. A trick with no card of the lead suit cannot occur (the
// leader's own card always matches), so that case is an invariant violation,
// not a recoverable error.
func ResolveTrick(trick []models.PlayedCard, leadSuit models.Suit) (uuid.UUID, models.Card) {
	var (
		winnerID uuid.UUID
		winning  models.Card
		best     = -1
	)
	for _, play := range trick {
		if play.Card.Suit != leadSuit {
			continue
		}
		if v := play.Card.Value(); v > best {
			best = v
			winnerID = play.PlayerID
			winning = play.Card
		}
	}
	if best < 0 {
		panic(fmt.Sprintf("trick %v has no card of lead suit %s", trick, leadSuit))
	}
	return winnerID, winning
}

// ScoreTrick returns the points awarded for winning the final trick of a
// round with the given card: a 6 is worth 3, a 7 worth 2, everything else 1.
func ScoreTrick(winning models.Card) int {
	switch winning.Rank {
	case "6":
		return 3
	case "7":
		return 2
	default:
		return 1
	}
}
