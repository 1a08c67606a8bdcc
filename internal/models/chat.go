// internal/models/chat.go
package models

import "github.com/google/uuid"

// ChatMessage is one entry in a room's append-only chat side channel. Chat
// has no consistency coupling to the room document; entries are ordered by
// timestamp (unix milliseconds).
type ChatMessage struct {
	SenderID   uuid.UUID `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  int64     `json:"timestamp"`
}
