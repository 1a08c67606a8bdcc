// internal/game/errors.go
package game

import "errors"

// Rule-violation errors. Every one of these rejects a single request
// synchronously and leaves room state untouched; no partial write is ever
// visible to other observers.
var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrCardNotInHand    = errors.New("card not in hand")
	ErrMustFollowSuit   = errors.New("must follow the lead suit")
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyJoined    = errors.New("already joined this room")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrNotRoomAdmin     = errors.New("only the room admin may do that")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("player is not in this room")
	ErrWrongPhase       = errors.New("operation not valid in this room state")
)

// ErrorCode maps a rule-violation error to the stable code reported to
// clients. Unknown errors map to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrCardNotInHand):
		return "card_not_in_hand"
	case errors.Is(err, ErrMustFollowSuit):
		return "must_follow_suit"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrGameInProgress):
		return "game_in_progress"
	case errors.Is(err, ErrNotRoomAdmin):
		return "not_room_admin"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	default:
		return "internal"
	}
}
