// internal/deck/deck_test.go
package deck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwadwoansah/spar/internal/models"
)

func TestNewDeckComposition(t *testing.T) {
	cards := New()
	require.Len(t, cards, Size)

	seen := make(map[models.Card]bool, len(cards))
	for _, c := range cards {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}

	assert.False(t, seen[models.Card{Suit: models.Spades, Rank: "A"}],
		"Ace of Spades must not exist in the deck")

	// Every other suit keeps its ace.
	for _, suit := range []models.Suit{models.Hearts, models.Diamonds, models.Clubs} {
		assert.True(t, seen[models.Card{Suit: suit, Rank: "A"}], "missing %sA", suit)
	}
}

func TestShuffleReproducible(t *testing.T) {
	a := New()
	b := New()
	Shuffle(a, rand.New(rand.NewSource(42)))
	Shuffle(b, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b, "same seed must give the same permutation")

	c := New()
	Shuffle(c, rand.New(rand.NewSource(7)))
	assert.NotEqual(t, a, c, "different seeds should permute differently")
}

func TestShuffleIsPermutation(t *testing.T) {
	cards := New()
	Shuffle(cards, rand.New(rand.NewSource(1)))
	require.Len(t, cards, Size)

	seen := make(map[models.Card]bool, len(cards))
	for _, c := range cards {
		seen[c] = true
	}
	assert.Len(t, seen, Size)
}

func TestDealRoundRobin(t *testing.T) {
	cards := New()
	Shuffle(cards, rand.New(rand.NewSource(3)))

	hands, rest, err := Deal(cards, 3, models.CardsPerPlayer, 1)
	require.NoError(t, err)
	require.Len(t, hands, 3)
	for i, h := range hands {
		assert.Len(t, h, models.CardsPerPlayer, "seat %d", i)
	}
	assert.Len(t, rest, Size-3*models.CardsPerPlayer)

	// The first card off the top goes to the lead seat.
	assert.Equal(t, cards[len(cards)-1], hands[1][0])
	// Then one each to the following seats in rotation.
	assert.Equal(t, cards[len(cards)-2], hands[2][0])
	assert.Equal(t, cards[len(cards)-3], hands[0][0])
}

func TestDealSevenPlayersConsumesDeck(t *testing.T) {
	hands, rest, err := Deal(New(), models.MaxPlayers, models.CardsPerPlayer, 0)
	require.NoError(t, err)
	assert.Empty(t, rest, "7 players x 5 cards is exactly the deck")
	for _, h := range hands {
		assert.Len(t, h, models.CardsPerPlayer)
	}
}

func TestDealExhausted(t *testing.T) {
	_, _, err := Deal(New(), 8, models.CardsPerPlayer, 0)
	assert.ErrorIs(t, err, ErrDeckExhausted)

	_, _, err = Deal(New()[:10], 3, models.CardsPerPlayer, 0)
	assert.ErrorIs(t, err, ErrDeckExhausted)
}
