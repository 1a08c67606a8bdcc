// internal/models/room.go
package models

import "github.com/google/uuid"

// RoomStatus is the room lifecycle state.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusRoundEnd RoomStatus = "round_end"
	StatusGameEnd  RoomStatus = "game_end"
)

// MaxPlayers is the seat cap. 7 players x 5 cards is exactly the 35-card
// deck, so anything above 7 would exhaust the deck on deal.
const MaxPlayers = 7

// CardsPerPlayer is the hand size dealt at the start of every round.
const CardsPerPlayer = 5

// TricksPerRound is the number of tricks in a round; only the last one scores.
const TricksPerRound = 5

// PlayedCard is one entry in the current trick. Sequence order is
// significant: the first play fixes the lead suit.
type PlayedCard struct {
	PlayerID uuid.UUID `json:"playerId"`
	Card     Card      `json:"card"`
}

// RoomState is the room document, the unit of consistency shared by every
// observer. Field names match the replicated document the clients read.
type RoomState struct {
	ID      string     `json:"id"`
	Status  RoomStatus `json:"status"`
	Players []Player   `json:"players"`

	DealerID        uuid.UUID `json:"dealerId"`
	CurrentPlayerID uuid.UUID `json:"currentPlayerId"`

	CurrentTrick []PlayedCard `json:"currentTrick"`
	LeadSuit     Suit         `json:"leadSuit,omitempty"`
	TrickCount   int          `json:"trickCount"`

	RoundWinnerID        uuid.UUID `json:"roundWinnerId"`
	GameWinnerID         uuid.UUID `json:"gameWinnerId"`
	LastTrickWinnerID    uuid.UUID `json:"lastTrickWinnerId"`
	LastTrickWinningCard *Card     `json:"lastTrickWinningCard,omitempty"`
	LastTrickMessage     string    `json:"lastTrickMessage,omitempty"`

	GameTargetScore int `json:"gameTargetScore"`
}

// PlayerIndex returns the seat index of the given player, or -1.
func (s *RoomState) PlayerIndex(id uuid.UUID) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// PlayerByID returns a pointer into Players for the given id, or nil.
func (s *RoomState) PlayerByID(id uuid.UUID) *Player {
	if i := s.PlayerIndex(id); i >= 0 {
		return &s.Players[i]
	}
	return nil
}

// AdminID returns the room admin identity: the first seated player.
func (s *RoomState) AdminID() uuid.UUID {
	if len(s.Players) == 0 {
		return uuid.Nil
	}
	return s.Players[0].ID
}

// Clone deep-copies the document so snapshots handed to observers cannot
// alias the authoritative state.
func (s RoomState) Clone() RoomState {
	out := s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p
		out.Players[i].Hand = append([]Card(nil), p.Hand...)
	}
	out.CurrentTrick = append([]PlayedCard(nil), s.CurrentTrick...)
	if s.LastTrickWinningCard != nil {
		c := *s.LastTrickWinningCard
		out.LastTrickWinningCard = &c
	}
	return out
}
