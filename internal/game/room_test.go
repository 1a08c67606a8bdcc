// internal/game/room_test.go
package game

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwadwoansah/spar/internal/models"
	"github.com/kwadwoansah/spar/internal/store"
)

// mockBroadcaster collects state snapshots instead of sending them over WS.
type mockBroadcaster struct {
	mu     sync.Mutex
	states []models.RoomState
}

func (mb *mockBroadcaster) broadcastFn(state models.RoomState) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.states = append(mb.states, state)
}

func (mb *mockBroadcaster) last() *models.RoomState {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.states) == 0 {
		return nil
	}
	return &mb.states[len(mb.states)-1]
}

func (mb *mockBroadcaster) count() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.states)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestRoom creates a room with numPlayers seated, backed by a memory
// store and a seeded shuffle.
func setupTestRoom(t *testing.T, numPlayers, targetScore int) (*Room, []uuid.UUID, *mockBroadcaster) {
	t.Helper()
	require.GreaterOrEqual(t, numPlayers, 1)

	ctx := context.Background()
	st := store.NewMemoryStore()
	ids := make([]uuid.UUID, numPlayers)
	for i := range ids {
		ids[i] = uuid.New()
	}

	r, err := NewRoom(ctx, "TESTRM", ids[0], "player0", targetScore, st, rand.New(rand.NewSource(42)), testLogger())
	require.NoError(t, err)
	r.RoundDelay = time.Hour // Tests that want the timer shorten it themselves.

	for i := 1; i < numPlayers; i++ {
		require.NoError(t, r.Join(ctx, ids[i], "player"+string(rune('0'+i))))
	}

	mb := &mockBroadcaster{}
	r.BroadcastFn = mb.broadcastFn
	return r, ids, mb
}

// playLegalCard plays one legal card for the room's current player and
// returns what was played.
func playLegalCard(t *testing.T, r *Room) models.PlayedCard {
	t.Helper()
	state := r.Snapshot()
	actor := state.CurrentPlayerID
	p := state.PlayerByID(actor)
	require.NotNil(t, p, "current player must be seated")
	require.NotEmpty(t, p.Hand)

	pick := p.Hand[0]
	if state.LeadSuit != "" {
		for _, c := range p.Hand {
			if c.Suit == state.LeadSuit {
				pick = c
				break
			}
		}
	}
	require.NoError(t, r.PlayCard(context.Background(), actor, pick))
	return models.PlayedCard{PlayerID: actor, Card: pick}
}

// playTrick plays one full trick and returns the plays in order.
func playTrick(t *testing.T, r *Room) []models.PlayedCard {
	t.Helper()
	n := len(r.Snapshot().Players)
	plays := make([]models.PlayedCard, 0, n)
	for i := 0; i < n; i++ {
		plays = append(plays, playLegalCard(t, r))
	}
	return plays
}

// playRound plays tricks until the room leaves the playing state.
func playRound(t *testing.T, r *Room) {
	t.Helper()
	for i := 0; i < models.TricksPerRound; i++ {
		playTrick(t, r)
	}
	require.NotEqual(t, models.StatusPlaying, r.Snapshot().Status)
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 10)

	t.Run("duplicate join rejected", func(t *testing.T) {
		assert.ErrorIs(t, r.Join(ctx, ids[1], "again"), ErrAlreadyJoined)
	})

	t.Run("seventh seat fills the room", func(t *testing.T) {
		for i := 2; i < models.MaxPlayers; i++ {
			require.NoError(t, r.Join(ctx, uuid.New(), "filler"))
		}
		assert.ErrorIs(t, r.Join(ctx, uuid.New(), "eighth"), ErrRoomFull)
	})

	t.Run("join after start rejected", func(t *testing.T) {
		require.NoError(t, r.Start(ctx, ids[0]))
		assert.ErrorIs(t, r.Join(ctx, uuid.New(), "late"), ErrGameInProgress)
	})
}

func TestStartRules(t *testing.T) {
	ctx := context.Background()

	t.Run("needs two players", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 1, 10)
		assert.ErrorIs(t, r.Start(ctx, ids[0]), ErrNotEnoughPlayers)
	})

	t.Run("admin only", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 10)
		assert.ErrorIs(t, r.Start(ctx, ids[1]), ErrNotRoomAdmin)
	})

	t.Run("deal shape", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 10)
		require.NoError(t, r.Start(ctx, ids[0]))

		state := r.Snapshot()
		assert.Equal(t, models.StatusPlaying, state.Status)
		assert.Equal(t, ids[0], state.DealerID)
		assert.Equal(t, ids[1], state.CurrentPlayerID, "seat after the dealer leads")
		assert.Empty(t, state.CurrentTrick)
		assert.Zero(t, state.TrickCount)
		for _, p := range state.Players {
			assert.Len(t, p.Hand, models.CardsPerPlayer)
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 2, 10)
		require.NoError(t, r.Start(ctx, ids[0]))
		assert.ErrorIs(t, r.Start(ctx, ids[0]), ErrGameInProgress)
	})
}

func TestPlayCardValidation(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 10)

	t.Run("wrong phase before start", func(t *testing.T) {
		assert.ErrorIs(t, r.PlayCard(ctx, ids[0], models.Card{Suit: models.Hearts, Rank: "9"}), ErrWrongPhase)
	})

	require.NoError(t, r.Start(ctx, ids[0]))

	t.Run("stranger rejected", func(t *testing.T) {
		assert.ErrorIs(t, r.PlayCard(ctx, uuid.New(), models.Card{Suit: models.Hearts, Rank: "9"}), ErrNotInRoom)
	})

	t.Run("out of turn rejected", func(t *testing.T) {
		state := r.Snapshot()
		waiting := ids[0]
		if state.CurrentPlayerID == waiting {
			waiting = ids[1]
		}
		hand := state.PlayerByID(waiting).Hand
		assert.ErrorIs(t, r.PlayCard(ctx, waiting, hand[0]), ErrNotYourTurn)
	})

	t.Run("rejected play leaves state untouched", func(t *testing.T) {
		before := r.Snapshot()
		state := r.Snapshot()
		hand := state.PlayerByID(state.CurrentPlayerID).Hand
		err := r.PlayCard(ctx, state.CurrentPlayerID, models.Card{Suit: hand[0].Suit, Rank: "bogus"})
		assert.ErrorIs(t, err, ErrCardNotInHand)
		assert.Equal(t, before, r.Snapshot())
	})
}

func TestTrickFlow(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 3, 10)
	require.NoError(t, r.Start(ctx, ids[0]))

	plays := playTrick(t, r)
	leadSuit := plays[0].Card.Suit
	wantWinner, _ := ResolveTrick(plays, leadSuit)

	state := r.Snapshot()
	assert.Equal(t, models.StatusPlaying, state.Status)
	assert.Equal(t, 1, state.TrickCount)
	assert.Empty(t, state.CurrentTrick, "trick display clears between mid-round tricks")
	assert.Empty(t, state.LeadSuit)
	assert.Equal(t, wantWinner, state.CurrentPlayerID, "trick winner leads the next trick")
	for _, p := range state.Players {
		assert.Len(t, p.Hand, models.CardsPerPlayer-1)
	}
}

func TestLeadSuitFixedByFirstCard(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 10)
	require.NoError(t, r.Start(ctx, ids[0]))

	lead := playLegalCard(t, r)
	state := r.Snapshot()
	assert.Equal(t, lead.Card.Suit, state.LeadSuit)
	assert.Len(t, state.CurrentTrick, 1)

	// The second player must follow if able.
	follower := state.PlayerByID(state.CurrentPlayerID)
	var offSuit *models.Card
	holdsLead := follower.HasSuit(state.LeadSuit)
	for _, c := range follower.Hand {
		if c.Suit != state.LeadSuit {
			offSuit = &c
			break
		}
	}
	if holdsLead && offSuit != nil {
		assert.ErrorIs(t, r.PlayCard(ctx, follower.ID, *offSuit), ErrMustFollowSuit)
	}
}

func TestRoundEndScoring(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 3, 100)
	require.NoError(t, r.Start(ctx, ids[0]))

	before := r.Snapshot()
	var lastTrick []models.PlayedCard
	for i := 0; i < models.TricksPerRound; i++ {
		lastTrick = playTrick(t, r)
	}

	wantWinner, wantCard := ResolveTrick(lastTrick, lastTrick[0].Card.Suit)
	state := r.Snapshot()

	assert.Equal(t, models.StatusRoundEnd, state.Status)
	assert.Equal(t, wantWinner, state.RoundWinnerID)
	assert.Equal(t, wantWinner, state.LastTrickWinnerID)
	require.NotNil(t, state.LastTrickWinningCard)
	assert.Equal(t, wantCard, *state.LastTrickWinningCard)
	assert.Equal(t, wantWinner, state.CurrentPlayerID)

	// The final trick stays visible through the pause; counters reset.
	assert.Len(t, state.CurrentTrick, len(state.Players))
	assert.Empty(t, state.LeadSuit)
	assert.Zero(t, state.TrickCount)

	// A full round consumes every dealt card.
	for _, p := range state.Players {
		assert.Empty(t, p.Hand)
	}

	// Only the round winner scored, and by exactly the card's worth.
	for _, p := range state.Players {
		prev := before.PlayerByID(p.ID).Score
		if p.ID == wantWinner {
			assert.Equal(t, prev+ScoreTrick(wantCard), p.Score)
		} else {
			assert.Equal(t, prev, p.Score)
		}
	}
}

func TestRoundAdvanceTimer(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 100)
	r.RoundDelay = 20 * time.Millisecond
	require.NoError(t, r.Start(ctx, ids[0]))

	playRound(t, r)
	endState := r.Snapshot()
	require.Equal(t, models.StatusRoundEnd, endState.Status)
	winner := endState.RoundWinnerID

	require.Eventually(t, func() bool {
		return r.Snapshot().Status == models.StatusPlaying
	}, time.Second, 5*time.Millisecond)

	state := r.Snapshot()
	assert.Equal(t, winner, state.DealerID, "round winner deals next")
	next := state.Players[(state.PlayerIndex(winner)+1)%len(state.Players)].ID
	assert.Equal(t, next, state.CurrentPlayerID)
	assert.Empty(t, state.CurrentTrick)
	assert.Nil(t, state.LastTrickWinningCard)
	for _, p := range state.Players {
		assert.Len(t, p.Hand, models.CardsPerPlayer)
	}
}

func TestManualRoundAdvanceOutOfPhase(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 10)
	assert.ErrorIs(t, r.StartNewRound(ctx), ErrWrongPhase)
	require.NoError(t, r.Start(ctx, ids[0]))
	assert.ErrorIs(t, r.StartNewRound(ctx), ErrWrongPhase)
}

func TestGameEnd(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 1)

	ended := make(chan models.RoomState, 1)
	r.OnGameEnd = func(state models.RoomState) { ended <- state }

	require.NoError(t, r.Start(ctx, ids[0]))
	playRound(t, r)

	state := r.Snapshot()
	require.Equal(t, models.StatusGameEnd, state.Status)
	assert.Equal(t, state.RoundWinnerID, state.GameWinnerID)
	assert.Equal(t, uuid.Nil, state.CurrentPlayerID, "no turn in a finished game")
	assert.GreaterOrEqual(t, state.PlayerByID(state.GameWinnerID).Score, state.GameTargetScore)

	select {
	case final := <-ended:
		assert.Equal(t, state.GameWinnerID, final.GameWinnerID)
	case <-time.After(time.Second):
		t.Fatal("OnGameEnd was not invoked")
	}

	// The finished game accepts no further plays.
	assert.ErrorIs(t, r.PlayCard(ctx, ids[0], models.Card{Suit: models.Hearts, Rank: "9"}), ErrWrongPhase)
}

func TestSeatOrderTieBreak(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 3, 1)
	require.NoError(t, r.Start(ctx, ids[0]))
	playRound(t, r)

	// With a target of 1 the first round winner always ends the game; the
	// winner scan runs in seat order, so the reported winner must be the
	// earliest seat at or above target.
	state := r.Snapshot()
	require.Equal(t, models.StatusGameEnd, state.Status)
	for _, p := range state.Players {
		if p.Score >= state.GameTargetScore {
			assert.Equal(t, p.ID, state.GameWinnerID)
			break
		}
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 1)
	require.NoError(t, r.Start(ctx, ids[0]))
	playRound(t, r)
	require.Equal(t, models.StatusGameEnd, r.Snapshot().Status)

	t.Run("admin only", func(t *testing.T) {
		assert.ErrorIs(t, r.Reset(ctx, ids[1]), ErrNotRoomAdmin)
	})

	t.Run("back to waiting", func(t *testing.T) {
		require.NoError(t, r.Reset(ctx, ids[0]))
		state := r.Snapshot()
		assert.Equal(t, models.StatusWaiting, state.Status)
		assert.Equal(t, ids[0], state.DealerID)
		assert.Equal(t, ids[0], state.CurrentPlayerID)
		assert.Equal(t, uuid.Nil, state.GameWinnerID)
		assert.Equal(t, 1, state.GameTargetScore)
		for _, p := range state.Players {
			assert.Zero(t, p.Score)
			assert.Empty(t, p.Hand)
		}
	})

	t.Run("restartable after reset", func(t *testing.T) {
		require.NoError(t, r.Start(ctx, ids[0]))
		assert.Equal(t, models.StatusPlaying, r.Snapshot().Status)
	})
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("stranger rejected", func(t *testing.T) {
		r, _, _ := setupTestRoom(t, 2, 10)
		assert.ErrorIs(t, r.Leave(ctx, uuid.New()), ErrNotInRoom)
	})

	t.Run("dealer and turn fall to new admin", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 10)
		require.NoError(t, r.Start(ctx, ids[0]))

		// ids[0] is dealer; make it also the current player's departure case
		// by removing whoever currently holds the turn.
		leaver := r.Snapshot().CurrentPlayerID
		require.NoError(t, r.Leave(ctx, leaver))

		state := r.Snapshot()
		assert.Equal(t, -1, state.PlayerIndex(leaver))
		assert.Equal(t, state.AdminID(), state.CurrentPlayerID)
		assert.Len(t, state.Players, 2)
	})

	t.Run("admin departure promotes next seat", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 10)
		require.NoError(t, r.Leave(ctx, ids[0]))
		state := r.Snapshot()
		assert.Equal(t, ids[1], state.AdminID())
		assert.Equal(t, ids[1], state.DealerID)
		assert.Equal(t, ids[1], state.CurrentPlayerID)
	})

	t.Run("leader departs mid-trick", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 100)
		require.NoError(t, r.Start(ctx, ids[0]))

		// The leader plays and then leaves; their card goes with them.
		lead := playLegalCard(t, r)
		require.NoError(t, r.Leave(ctx, lead.PlayerID))

		state := r.Snapshot()
		assert.Empty(t, state.CurrentTrick)
		assert.Empty(t, state.LeadSuit)

		// The two remaining players finish the trick; the winner must still
		// be seated.
		plays := playTrick(t, r)
		wantWinner, _ := ResolveTrick(plays, plays[0].Card.Suit)
		state = r.Snapshot()
		assert.Equal(t, 1, state.TrickCount)
		assert.Equal(t, wantWinner, state.CurrentPlayerID)
		assert.GreaterOrEqual(t, state.PlayerIndex(state.CurrentPlayerID), 0)
	})

	t.Run("turn holder departs mid-trick", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 100)
		require.NoError(t, r.Start(ctx, ids[0]))

		// Leader plays, then the player now holding the turn leaves without
		// playing. The turn must pass to a seat that has not played yet.
		lead := playLegalCard(t, r)
		leaver := r.Snapshot().CurrentPlayerID
		require.NoError(t, r.Leave(ctx, leaver))

		state := r.Snapshot()
		require.Len(t, state.CurrentTrick, 1)
		assert.Equal(t, lead.Card.Suit, state.LeadSuit)
		assert.NotEqual(t, lead.PlayerID, state.CurrentPlayerID,
			"a player who already played must not hold the turn")
		assert.GreaterOrEqual(t, state.PlayerIndex(state.CurrentPlayerID), 0)

		// The remaining player completes the trick normally.
		playLegalCard(t, r)
		assert.Equal(t, 1, r.Snapshot().TrickCount)
	})

	t.Run("departure completes the trick", func(t *testing.T) {
		r, ids, _ := setupTestRoom(t, 3, 100)
		require.NoError(t, r.Start(ctx, ids[0]))

		// Two of three play; the third leaves instead of playing, so every
		// remaining seat has a card in and the trick resolves.
		plays := []models.PlayedCard{playLegalCard(t, r), playLegalCard(t, r)}
		leaver := r.Snapshot().CurrentPlayerID
		require.NoError(t, r.Leave(ctx, leaver))

		wantWinner, _ := ResolveTrick(plays, plays[0].Card.Suit)
		state := r.Snapshot()
		assert.Equal(t, 1, state.TrickCount)
		assert.Equal(t, wantWinner, state.CurrentPlayerID)
		assert.Empty(t, state.CurrentTrick)
	})

	t.Run("last player destroys the room", func(t *testing.T) {
		st := store.NewMemoryStore()
		host := uuid.New()
		r, err := NewRoom(ctx, "GONE01", host, "host", 10, st, rand.New(rand.NewSource(1)), testLogger())
		require.NoError(t, err)

		emptied := make(chan string, 1)
		r.OnEmpty = func(id string) { emptied <- id }

		require.NoError(t, r.Leave(ctx, host))
		select {
		case id := <-emptied:
			assert.Equal(t, "GONE01", id)
		default:
			t.Fatal("OnEmpty was not invoked")
		}
		_, _, err = st.Load(ctx, "GONE01")
		assert.ErrorIs(t, err, store.ErrRoomNotFound)
	})
}

func TestBroadcastOnEveryTransition(t *testing.T) {
	ctx := context.Background()
	r, ids, mb := setupTestRoom(t, 2, 10)

	require.NoError(t, r.Start(ctx, ids[0]))
	last := mb.last()
	require.NotNil(t, last)
	assert.Equal(t, models.StatusPlaying, last.Status)

	play := playLegalCard(t, r)
	last = mb.last()
	require.NotNil(t, last)
	require.Len(t, last.CurrentTrick, 1)
	assert.Equal(t, play.Card, last.CurrentTrick[0].Card)

	// Broadcast snapshots are copies: mutating one must not affect the room.
	last.Players[0].Score = 999
	assert.NotEqual(t, 999, r.Snapshot().Players[0].Score)
}

// flakyStore injects Save failures over a working in-memory store.
type flakyStore struct {
	*store.MemoryStore
	saveErr error
}

func (f *flakyStore) Save(ctx context.Context, roomID string, state models.RoomState, expect int64) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	return f.MemoryStore.Save(ctx, roomID, state, expect)
}

func setupFlakyRoom(t *testing.T) (*Room, *flakyStore, []uuid.UUID, *mockBroadcaster) {
	t.Helper()
	ctx := context.Background()
	fs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	r, err := NewRoom(ctx, "FLAKY1", ids[0], "player0", 10, fs, rand.New(rand.NewSource(42)), testLogger())
	require.NoError(t, err)
	r.RoundDelay = time.Hour
	require.NoError(t, r.Join(ctx, ids[1], "player1"))
	require.NoError(t, r.Start(ctx, ids[0]))

	mb := &mockBroadcaster{}
	r.BroadcastFn = mb.broadcastFn
	return r, fs, ids, mb
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	r, fs, _, mb := setupFlakyRoom(t)

	before := r.Snapshot()
	actor := before.CurrentPlayerID
	card := before.PlayerByID(actor).Hand[0]

	fs.saveErr = assert.AnError
	require.Error(t, r.PlayCard(ctx, actor, card))

	// The failed intent took no effect: no state change, no broadcast.
	assert.Equal(t, before, r.Snapshot())
	assert.Zero(t, mb.count())

	// The same play goes through once the store recovers.
	fs.saveErr = nil
	require.NoError(t, r.PlayCard(ctx, actor, card))
	state := r.Snapshot()
	require.Len(t, state.CurrentTrick, 1)
	assert.Equal(t, card, state.CurrentTrick[0].Card)
	assert.Equal(t, 1, mb.count())
}

func TestConflictExhaustionSurfaced(t *testing.T) {
	ctx := context.Background()
	r, fs, ids, _ := setupFlakyRoom(t)

	before := r.Snapshot()
	actor := before.CurrentPlayerID
	card := before.PlayerByID(actor).Hand[0]

	fs.saveErr = store.ErrVersionConflict
	err := r.PlayCard(ctx, actor, card)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, before, r.Snapshot())

	// Joins and leaves hit the same commit path.
	fs.saveErr = assert.AnError
	require.Error(t, r.Leave(ctx, ids[1]))
	assert.Equal(t, before, r.Snapshot())
}

func TestScoresNeverDecrease(t *testing.T) {
	ctx := context.Background()
	r, ids, _ := setupTestRoom(t, 2, 3)
	r.RoundDelay = 10 * time.Millisecond
	require.NoError(t, r.Start(ctx, ids[0]))

	prev := map[uuid.UUID]int{}
	for rounds := 0; rounds < 10; rounds++ {
		state := r.Snapshot()
		if state.Status == models.StatusGameEnd {
			return
		}
		if state.Status == models.StatusRoundEnd {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		playRound(t, r)
		for _, p := range r.Snapshot().Players {
			assert.GreaterOrEqual(t, p.Score, prev[p.ID])
			prev[p.ID] = p.Score
		}
		require.Eventually(t, func() bool {
			s := r.Snapshot().Status
			return s == models.StatusPlaying || s == models.StatusGameEnd
		}, time.Second, time.Millisecond)
	}
}
