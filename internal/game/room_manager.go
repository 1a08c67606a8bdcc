// internal/game/room_manager.go
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

	"github.com/kwadwoansah/spar/internal/store"
)

// codeAlphabet matches the share codes players type to each other: uppercase
// base-36.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a room share code.
const CodeLength = 6

// codeAttempts bounds collision retries when minting a room code. Codes are
// advisory-unique, not cryptographic.
const codeAttempts = 5

// Manager owns every live room in this process: it mints share codes,
// creates rooms, and drops them when they empty.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	rng   *rand.Rand

	store  store.RoomStore
	logger *logrus.Logger

	// RoundDelay and DefaultTargetScore seed every room the manager creates.
	RoundDelay         time.Duration
	DefaultTargetScore int
}

// NewManager returns a Manager over the given document store.
func NewManager(st store.RoomStore, logger *logrus.Logger) *Manager {
	return &Manager{
		rooms:              make(map[string]*Room),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
		store:              st,
		logger:             logger,
		RoundDelay:         3 * time.Second,
		DefaultTargetScore: 10,
	}
}

// CreateRoom mints a code, creates the room with the host seated, and
// registers it. targetScore <= 0 selects the default.
func (m *Manager) CreateRoom(ctx context.Context, host uuid.UUID, hostName string, targetScore int) (*Room, error) {
	if targetScore <= 0 {
		targetScore = m.DefaultTargetScore
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.mintCodeLocked(ctx)
	if err != nil {
		return nil, err
	}

	room, err := NewRoom(ctx, id, host, hostName, targetScore, m.store, rand.New(rand.NewSource(m.rng.Int63())), m.logger)
	if err != nil {
		return nil, err
	}
	room.RoundDelay = m.RoundDelay
	room.OnEmpty = m.dropRoom
	m.rooms[id] = room
	m.logger.Infof("room %s created by %s (%s), target %d", id, hostName, host, targetScore)
	return room, nil
}

// Room returns a live room by share code.
func (m *Manager) Room(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// dropRoom removes an emptied room from the registry.
func (m *Manager) dropRoom(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
}

// mintCodeLocked generates a share code not currently in use, checking both
// the live registry and the document store.
func (m *Manager) mintCodeLocked(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := m.randomCodeLocked()
		if _, live := m.rooms[code]; live {
			continue
		}
		if _, _, err := m.store.Load(ctx, code); errors.Is(err, store.ErrRoomNotFound) {
			return code, nil
		} else if err != nil {
			return "", fmt.Errorf("checking room code %s: %w", code, err)
		}
	}
	return "", fmt.Errorf("could not mint a free room code after %d attempts", codeAttempts)
}

func (m *Manager) randomCodeLocked() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[m.rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
