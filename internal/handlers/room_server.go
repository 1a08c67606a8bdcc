// internal/handlers/room_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kwadwoansah/spar/internal/database"
	"github.com/kwadwoansah/spar/internal/game"
	"github.com/kwadwoansah/spar/internal/models"
	"github.com/kwadwoansah/spar/internal/store"
)

// RoomServer ties the room manager to its websocket observers: it tracks the
// live connections per room and fans each state snapshot out to them.
type RoomServer struct {
	Rooms  *game.Manager
	Store  store.RoomStore
	Chat   store.ChatStore
	Logger *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*roomSession
}

// NewRoomServer builds a RoomServer over the given manager and stores.
func NewRoomServer(rooms *game.Manager, st store.RoomStore, chat store.ChatStore, logger *logrus.Logger) *RoomServer {
	return &RoomServer{
		Rooms:    rooms,
		Store:    st,
		Chat:     chat,
		Logger:   logger,
		sessions: make(map[string]*roomSession),
	}
}

// CreateRoom creates a room with the host seated and wires its callbacks.
func (s *RoomServer) CreateRoom(ctx context.Context, host uuid.UUID, hostName string, targetScore int) (*game.Room, error) {
	room, err := s.Rooms.CreateRoom(ctx, host, hostName, targetScore)
	if err != nil {
		return nil, err
	}

	sess := s.session(room.ID)
	room.BroadcastFn = func(state models.RoomState) {
		sess.broadcast(stateMessage(state))
	}
	room.OnGameEnd = func(state models.RoomState) {
		if err := database.RecordMatchResult(context.Background(), state); err != nil {
			s.Logger.WithError(err).Warnf("recording match result for room %s", state.ID)
		}
	}

	baseOnEmpty := room.OnEmpty
	room.OnEmpty = func(roomID string) {
		s.dropSession(roomID)
		if baseOnEmpty != nil {
			baseOnEmpty(roomID)
		}
	}
	return room, nil
}

// session returns the connection set for a room, creating it on first use.
func (s *RoomServer) session(roomID string) *roomSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[roomID]
	if !ok {
		sess = &roomSession{conns: make(map[*roomConn]struct{})}
		s.sessions[roomID] = sess
	}
	return sess
}

func (s *RoomServer) dropSession(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
}

// roomConn is one websocket observer of a room.
type roomConn struct {
	PlayerID uuid.UUID
	Cancel   func()
	OutChan  chan map[string]interface{}
}

// Write pushes a message onto the connection's out-channel without blocking;
// a full channel drops the message and the client re-reads on reconnect.
func (c *roomConn) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
	}
}

// WriteError sends an error payload with a stable code. Rule violations are
// reported to the offending client only; the room is unchanged for everyone
// else.
func (c *roomConn) WriteError(code, message string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"code":    code,
		"message": message,
	})
}

// roomSession is the set of live connections observing one room.
type roomSession struct {
	mu    sync.Mutex
	conns map[*roomConn]struct{}
}

func (s *roomSession) add(c *roomConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *roomSession) remove(c *roomConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *roomSession) broadcast(msg map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Write(msg)
	}
}

func stateMessage(state models.RoomState) map[string]interface{} {
	return map[string]interface{}{
		"type": "room_state",
		"room": state,
	}
}

func chatMessagePayload(msg models.ChatMessage) map[string]interface{} {
	return map[string]interface{}{
		"type":    "chat",
		"message": msg,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
