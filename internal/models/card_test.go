// internal/models/card_test.go
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardWireFormat(t *testing.T) {
	c := Card{Suit: Spades, Rank: "10"}
	assert.Equal(t, "S10", c.String())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `"S10"`, string(data))

	var back Card
	require.NoError(t, json.Unmarshal([]byte(`"H9"`), &back))
	assert.Equal(t, Card{Suit: Hearts, Rank: "9"}, back)
}

func TestParseCardRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "H", "X9", "H5", "H11", "9H"} {
		_, err := ParseCard(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestRankOrder(t *testing.T) {
	// 6 is the lowest card in play and the ace the highest.
	prev := 0
	for _, r := range Ranks {
		v := Card{Suit: Hearts, Rank: r}.Value()
		assert.Greater(t, v, prev, "rank %s", r)
		prev = v
	}
	assert.Equal(t, 6, Card{Suit: Hearts, Rank: "6"}.Value())
	assert.Equal(t, 14, Card{Suit: Hearts, Rank: "A"}.Value())
}
