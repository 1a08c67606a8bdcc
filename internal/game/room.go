// internal/game/room.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kwadwoansah/spar/internal/deck"
	"github.com/kwadwoansah/spar/internal/models"
	"github.com/kwadwoansah/spar/internal/store"
)

// persistAttempts bounds conditional-write retries before a conflict is
// surfaced to the caller.
const persistAttempts = 3

// Room is the authoritative state machine for one Spar match. All client
// intents are applied under Mu, one at a time, and every intent is fully
// validated before any mutation: a rejected request never leaves a partial
// write behind. After each transition the document is persisted to the store
// with a conditional write and the new snapshot broadcast to observers.
type Room struct {
	ID string

	Mu sync.Mutex

	state   models.RoomState
	version int64

	store store.RoomStore
	rng   *rand.Rand
	log   *logrus.Entry

	// RoundDelay is the observation pause between a round ending and the next
	// deal. It is display pacing only: the timer merely invokes StartNewRound
	// and is cancelled by reset, game end, or room destruction.
	RoundDelay time.Duration

	defaultTargetScore int
	roundTimer         *time.Timer

	// pendingGameEnd marks a game_end transition whose OnGameEnd dispatch
	// waits for the document to persist.
	pendingGameEnd bool

	// BroadcastFn pushes a state snapshot to connected clients after every
	// successful transition. Writes must not block.
	BroadcastFn func(models.RoomState)

	// OnEmpty is called after the last player leaves and the document has
	// been deleted.
	OnEmpty func(roomID string)

	// OnGameEnd is called once when the room reaches game_end, with the final
	// snapshot.
	OnGameEnd func(models.RoomState)
}

// NewRoom creates a room in the waiting state with the creator seated as
// players[0] (the room admin and initial dealer) and persists the document.
func NewRoom(ctx context.Context, id string, host uuid.UUID, hostName string, targetScore int, st store.RoomStore, rng *rand.Rand, logger *logrus.Logger) (*Room, error) {
	r := &Room{
		ID:                 id,
		store:              st,
		rng:                rng,
		log:                logger.WithField("room", id),
		RoundDelay:         3 * time.Second,
		defaultTargetScore: targetScore,
		state: models.RoomState{
			ID:              id,
			Status:          models.StatusWaiting,
			Players:         []models.Player{{ID: host, Name: hostName}},
			DealerID:        host,
			CurrentPlayerID: host,
			GameTargetScore: targetScore,
		},
	}
	if err := r.persistLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns a deep copy of the current document.
func (r *Room) Snapshot() models.RoomState {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.state.Clone()
}

// Join seats a new player. Only possible while the room is waiting and has a
// free seat.
func (r *Room) Join(ctx context.Context, id uuid.UUID, name string) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.state.PlayerIndex(id) >= 0 {
		return ErrAlreadyJoined
	}
	if r.state.Status != models.StatusWaiting {
		return ErrGameInProgress
	}
	if len(r.state.Players) >= models.MaxPlayers {
		return ErrRoomFull
	}

	prev := r.state.Clone()
	r.state.Players = append(r.state.Players, models.Player{ID: id, Name: name})
	r.log.Infof("player %s (%s) joined, %d seated", name, id, len(r.state.Players))
	return r.commitLocked(ctx, prev)
}

// Start deals the first round. Only the room admin (players[0]) may start,
// only from waiting, with at least two players. The dealer is unchanged; the
// seat after the dealer leads.
func (r *Room) Start(ctx context.Context, actor uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.state.Status != models.StatusWaiting {
		return ErrGameInProgress
	}
	if actor != r.state.AdminID() {
		return ErrNotRoomAdmin
	}
	if len(r.state.Players) < 2 {
		return ErrNotEnoughPlayers
	}

	prev := r.state.Clone()
	if err := r.dealLocked(r.state.DealerID); err != nil {
		return err
	}
	r.log.Infof("game started with %d players, target %d", len(r.state.Players), r.state.GameTargetScore)
	return r.commitLocked(ctx, prev)
}

// PlayCard applies one card play from actor: validates turn order, hand
// membership and suit following, then advances the trick, resolving it when
// every seat has played.
func (r *Room) PlayCard(ctx context.Context, actor uuid.UUID, card models.Card) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.state.Status != models.StatusPlaying {
		return ErrWrongPhase
	}
	player := r.state.PlayerByID(actor)
	if player == nil {
		return ErrNotInRoom
	}
	if err := ValidatePlay(player, card, r.state.LeadSuit, r.state.CurrentPlayerID); err != nil {
		return err
	}

	prev := r.state.Clone()
	player.RemoveCard(card)
	r.state.CurrentTrick = append(r.state.CurrentTrick, models.PlayedCard{PlayerID: actor, Card: card})
	if r.state.LeadSuit == "" {
		r.state.LeadSuit = card.Suit
	}

	if len(r.state.CurrentTrick) < len(r.state.Players) {
		// Trick still open: next seat in rotation.
		next := (r.state.PlayerIndex(actor) + 1) % len(r.state.Players)
		r.state.CurrentPlayerID = r.state.Players[next].ID
		return r.commitLocked(ctx, prev)
	}

	r.resolveTrickLocked()
	return r.commitLocked(ctx, prev)
}

// resolveTrickLocked handles a completed trick: the winner leads the next
// trick, and the fifth trick scores and closes the round.
func (r *Room) resolveTrickLocked() {
	winnerID, winning := ResolveTrick(r.state.CurrentTrick, r.state.LeadSuit)
	winner := r.state.PlayerByID(winnerID)
	r.state.LastTrickMessage = fmt.Sprintf("%s won the trick with %s", winner.Name, winning)
	r.state.TrickCount++

	if r.state.TrickCount < models.TricksPerRound {
		r.state.CurrentTrick = nil
		r.state.LeadSuit = ""
		r.state.CurrentPlayerID = winnerID
		return
	}

	// Final trick of the round: the only one that scores. The trick display
	// is deliberately retained until the next deal so observers can see the
	// last play.
	points := ScoreTrick(winning)
	winner.Score += points
	card := winning
	r.state.RoundWinnerID = winnerID
	r.state.LastTrickWinnerID = winnerID
	r.state.LastTrickWinningCard = &card
	r.state.LeadSuit = ""
	r.state.TrickCount = 0

	if gameWinner := r.gameWinnerLocked(); gameWinner != uuid.Nil {
		r.state.Status = models.StatusGameEnd
		r.state.GameWinnerID = gameWinner
		r.state.CurrentPlayerID = uuid.Nil
		w := r.state.PlayerByID(gameWinner)
		r.state.LastTrickMessage = fmt.Sprintf("%s reached %d points and won the game", w.Name, w.Score)
		r.cancelRoundTimerLocked()
		r.log.Infof("game over, winner %s (%s) with %d points", w.Name, w.ID, w.Score)
		// OnGameEnd fires from commitLocked once the final document persists.
		r.pendingGameEnd = true
		return
	}

	r.state.Status = models.StatusRoundEnd
	r.state.CurrentPlayerID = winnerID
	r.state.LastTrickMessage = fmt.Sprintf("%s won the round with %s and scored %d points", winner.Name, winning, points)
	r.log.Infof("round won by %s with %s (%d points)", winner.Name, winning, points)
	r.scheduleRoundAdvanceLocked()
}

// gameWinnerLocked returns the first player in seat order whose score meets
// the target, or uuid.Nil. Seat order makes the tie-break deterministic.
func (r *Room) gameWinnerLocked() uuid.UUID {
	for i := range r.state.Players {
		if r.state.Players[i].Score >= r.state.GameTargetScore {
			return r.state.Players[i].ID
		}
	}
	return uuid.Nil
}

// scheduleRoundAdvanceLocked arms the observation-delay timer that starts
// the next round. The stale-timer guard means a timer that lost a race with
// reset or game end does nothing.
func (r *Room) scheduleRoundAdvanceLocked() {
	r.cancelRoundTimerLocked()
	var timer *time.Timer
	timer = time.AfterFunc(r.RoundDelay, func() {
		r.Mu.Lock()
		if r.roundTimer != timer {
			r.Mu.Unlock()
			return
		}
		r.roundTimer = nil
		r.Mu.Unlock()
		if err := r.StartNewRound(context.Background()); err != nil {
			r.log.WithError(err).Warn("scheduled round advance failed")
		}
	})
	r.roundTimer = timer
}

func (r *Room) cancelRoundTimerLocked() {
	if r.roundTimer != nil {
		r.roundTimer.Stop()
		r.roundTimer = nil
	}
}

// StartNewRound deals the next round after a round ends: fresh shuffle,
// scores preserved, the round winner becomes dealer, the seat after the
// dealer leads.
func (r *Room) StartNewRound(ctx context.Context) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.state.Status != models.StatusRoundEnd {
		return ErrWrongPhase
	}

	prev := r.state.Clone()
	dealer := r.state.RoundWinnerID
	if r.state.PlayerIndex(dealer) < 0 {
		// Round winner left during the pause; dealing falls to the admin.
		dealer = r.state.AdminID()
	}
	r.state.DealerID = dealer
	if err := r.dealLocked(dealer); err != nil {
		return err
	}
	r.log.Info("new round dealt")
	return r.commitLocked(ctx, prev)
}

// dealLocked rebuilds every hand from a fresh shuffle and resets the
// per-round trick state. Scores are untouched.
func (r *Room) dealLocked(dealerID uuid.UUID) error {
	cards := deck.New()
	deck.Shuffle(cards, r.rng)

	n := len(r.state.Players)
	lead := (r.state.PlayerIndex(dealerID) + 1) % n
	hands, _, err := deck.Deal(cards, n, models.CardsPerPlayer, lead)
	if err != nil {
		// Unreachable while the seat cap holds; the deck fits 7 players.
		return fmt.Errorf("dealing %d players: %w", n, err)
	}
	for i := range r.state.Players {
		r.state.Players[i].Hand = hands[i]
	}

	r.state.Status = models.StatusPlaying
	r.state.CurrentPlayerID = r.state.Players[lead].ID
	r.state.CurrentTrick = nil
	r.state.LeadSuit = ""
	r.state.TrickCount = 0
	r.state.RoundWinnerID = uuid.Nil
	r.state.LastTrickWinnerID = uuid.Nil
	r.state.LastTrickWinningCard = nil
	r.state.LastTrickMessage = ""
	return nil
}

// Reset returns the room to the waiting state: scores and hands cleared,
// dealer and lead back to the admin, target score back to its configured
// default. Admin only.
func (r *Room) Reset(ctx context.Context, actor uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if actor != r.state.AdminID() {
		return ErrNotRoomAdmin
	}

	prev := r.state.Clone()
	r.cancelRoundTimerLocked()
	for i := range r.state.Players {
		r.state.Players[i].Score = 0
		r.state.Players[i].Hand = nil
	}
	admin := r.state.AdminID()
	r.state.Status = models.StatusWaiting
	r.state.DealerID = admin
	r.state.CurrentPlayerID = admin
	r.state.CurrentTrick = nil
	r.state.LeadSuit = ""
	r.state.TrickCount = 0
	r.state.RoundWinnerID = uuid.Nil
	r.state.GameWinnerID = uuid.Nil
	r.state.LastTrickWinnerID = uuid.Nil
	r.state.LastTrickWinningCard = nil
	r.state.LastTrickMessage = ""
	r.state.GameTargetScore = r.defaultTargetScore
	r.log.Info("room reset to waiting")
	return r.commitLocked(ctx, prev)
}

// Leave removes a player. Leaving is always accepted regardless of game
// phase. A card the leaver had in the open trick is withdrawn with them, the
// dealer falls to the new players[0], and the turn falls to the first seat
// that has not yet played; when the room empties it is destroyed.
func (r *Room) Leave(ctx context.Context, actor uuid.UUID) error {
	r.Mu.Lock()

	idx := r.state.PlayerIndex(actor)
	if idx < 0 {
		r.Mu.Unlock()
		return ErrNotInRoom
	}
	prev := r.state.Clone()
	name := r.state.Players[idx].Name
	r.state.Players = append(r.state.Players[:idx], r.state.Players[idx+1:]...)

	if len(r.state.Players) == 0 {
		r.cancelRoundTimerLocked()
		onEmpty := r.OnEmpty
		r.Mu.Unlock()

		if err := r.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
			r.log.WithError(err).Warn("deleting empty room document")
		}
		r.log.Infof("last player left, room destroyed")
		if onEmpty != nil {
			onEmpty(r.ID)
		}
		return nil
	}

	if r.state.DealerID == actor {
		// Seat-order reassignment: simpler than chasing the trick-winner rule
		// across a departure.
		r.state.DealerID = r.state.AdminID()
	}

	if r.state.Status == models.StatusPlaying {
		r.withdrawFromTrickLocked(actor)
		if r.state.CurrentPlayerID == actor {
			r.state.CurrentPlayerID = r.nextUnplayedLocked()
		}
		if n := len(r.state.CurrentTrick); n > 0 && n == len(r.state.Players) {
			// The departure completed the trick: everyone still seated has
			// played.
			r.resolveTrickLocked()
		}
	} else if r.state.CurrentPlayerID == actor {
		r.state.CurrentPlayerID = r.state.AdminID()
	}
	r.log.Infof("player %s (%s) left, %d remain", name, actor, len(r.state.Players))

	err := r.commitLocked(ctx, prev)
	r.Mu.Unlock()
	return err
}

// withdrawFromTrickLocked removes actor's entry from the open trick, if any,
// and recomputes the lead suit from the earliest remaining play. Resolution
// then only ever sees cards of seated players.
func (r *Room) withdrawFromTrickLocked(actor uuid.UUID) {
	for i, play := range r.state.CurrentTrick {
		if play.PlayerID == actor {
			r.state.CurrentTrick = append(r.state.CurrentTrick[:i], r.state.CurrentTrick[i+1:]...)
			break
		}
	}
	if len(r.state.CurrentTrick) == 0 {
		r.state.LeadSuit = ""
	} else {
		r.state.LeadSuit = r.state.CurrentTrick[0].Card.Suit
	}
}

// nextUnplayedLocked returns the first seat, in order, with no card in the
// open trick. Handing the turn to a seat that already played would let one
// player put two cards in the same trick.
func (r *Room) nextUnplayedLocked() uuid.UUID {
	played := make(map[uuid.UUID]bool, len(r.state.CurrentTrick))
	for _, play := range r.state.CurrentTrick {
		played[play.PlayerID] = true
	}
	for i := range r.state.Players {
		if !played[r.state.Players[i].ID] {
			return r.state.Players[i].ID
		}
	}
	// Every seat has played; resolution will set the next turn.
	return r.state.AdminID()
}

// commitLocked persists the document and broadcasts the new snapshot.
// Callers hold Mu, have already applied a fully validated mutation, and pass
// the pre-mutation state: a failed persist restores it, so a surfaced error
// never leaves a partial write visible anywhere.
func (r *Room) commitLocked(ctx context.Context, prev models.RoomState) error {
	if err := r.persistLocked(ctx); err != nil {
		r.state = prev
		r.pendingGameEnd = false
		if r.state.Status == models.StatusRoundEnd && r.roundTimer == nil {
			r.scheduleRoundAdvanceLocked()
		}
		return err
	}
	if r.pendingGameEnd {
		r.pendingGameEnd = false
		if r.OnGameEnd != nil {
			go r.OnGameEnd(r.state.Clone())
		}
	}
	if r.BroadcastFn != nil {
		r.BroadcastFn(r.state.Clone())
	}
	return nil
}

// persistLocked writes the document conditionally on the version this room
// last observed, refreshing the version and retrying a bounded number of
// times on conflict. The room is the single writer for its document, so a
// conflict means an outside writer touched it.
func (r *Room) persistLocked(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		var v int64
		v, err = r.store.Save(ctx, r.ID, r.state, r.version)
		if err == nil {
			r.version = v
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("persist room %s: %w", r.ID, err)
		}
		_, r.version, _ = r.store.Load(ctx, r.ID)
	}
	return fmt.Errorf("persist room %s: %w", r.ID, err)
}
