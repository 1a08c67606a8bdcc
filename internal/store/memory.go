// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/kwadwoansah/spar/internal/models"
)

// MemoryStore is an in-process RoomStore and ChatStore. It backs tests and
// single-process deployments; the Redis store covers everything else.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
	chats map[string][]models.ChatMessage
}

type memoryRoom struct {
	state   models.RoomState
	version int64
	subs    map[int]chan models.RoomState
	nextSub int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*memoryRoom),
		chats: make(map[string][]models.ChatMessage),
	}
}

// Load implements RoomStore.
func (s *MemoryStore) Load(ctx context.Context, roomID string) (models.RoomState, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return models.RoomState{}, 0, ErrRoomNotFound
	}
	return r.state.Clone(), r.version, nil
}

// Save implements RoomStore. Subscribers are notified with a deep copy under
// the store lock; their channels are buffered and never blocked on.
func (s *MemoryStore) Save(ctx context.Context, roomID string, state models.RoomState, expect int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		if expect != 0 {
			return 0, ErrVersionConflict
		}
		r = &memoryRoom{subs: make(map[int]chan models.RoomState)}
		s.rooms[roomID] = r
	} else if r.version != expect {
		return 0, ErrVersionConflict
	}

	r.state = state.Clone()
	r.version++
	for _, ch := range r.subs {
		select {
		case ch <- r.state.Clone():
		default:
			// Slow subscriber; it re-reads on reconnect.
		}
	}
	return r.version, nil
}

// Delete implements RoomStore. Open subscription channels are closed.
func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for _, ch := range r.subs {
		close(ch)
	}
	delete(s.rooms, roomID)
	delete(s.chats, roomID)
	return nil
}

// Subscribe implements RoomStore.
func (s *MemoryStore) Subscribe(ctx context.Context, roomID string) (<-chan models.RoomState, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}

	ch := make(chan models.RoomState, 16)
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	ch <- r.state.Clone()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if room, ok := s.rooms[roomID]; ok {
			if sub, ok := room.subs[id]; ok {
				delete(room.subs, id)
				close(sub)
			}
		}
	}
	return ch, cancel, nil
}

// Append implements ChatStore.
func (s *MemoryStore) Append(ctx context.Context, roomID string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[roomID] = append(s.chats[roomID], msg)
	return nil
}

// History implements ChatStore, returning up to limit most recent messages
// in timestamp order.
func (s *MemoryStore) History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.ChatMessage(nil), msgs...), nil
}
