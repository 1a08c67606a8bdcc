// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/kwadwoansah/spar/internal/models"
)

var (
	// ErrRoomNotFound is returned by Load/Delete for an unknown room id.
	ErrRoomNotFound = errors.New("room document not found")

	// ErrVersionConflict is returned by Save when the document changed since
	// the version the caller read. Callers retry with a fresh read a bounded
	// number of times before surfacing the conflict.
	ErrVersionConflict = errors.New("room document version conflict")
)

// RoomStore is the replicated room-document store. The room document is the
// single unit of mutual exclusion: Save is conditional on the version the
// writer last observed, so a blind read-modify-write can never silently
// overwrite a concurrent update.
type RoomStore interface {
	// Load returns the current document and its version.
	Load(ctx context.Context, roomID string) (models.RoomState, int64, error)

	// Save writes the document if its stored version still equals expect,
	// returning the new version. expect == 0 creates the document and fails
	// with ErrVersionConflict if it already exists.
	Save(ctx context.Context, roomID string, state models.RoomState, expect int64) (int64, error)

	// Delete removes the document and ends its subscriptions.
	Delete(ctx context.Context, roomID string) error

	// Subscribe streams document snapshots: the current state first (when the
	// room exists), then every subsequent write. The returned func cancels
	// the subscription. Re-subscribing after a disconnect always yields the
	// latest state.
	Subscribe(ctx context.Context, roomID string) (<-chan models.RoomState, func(), error)
}

// ChatStore is the append-only chat side channel, keyed by room. It has no
// consistency coupling to the room document.
type ChatStore interface {
	Append(ctx context.Context, roomID string, msg models.ChatMessage) error
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}
