// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kwadwoansah/spar/internal/game"
	"github.com/kwadwoansah/spar/internal/models"
	"github.com/kwadwoansah/spar/internal/store"
)

const chatHistoryLimit = 100

// RoomWSHandler handles GET /room/ws/{id}: the realtime channel for a room.
// Clients speak the "spar" subprotocol; every room action arrives as a JSON
// packet with a "type" field, and every accepted action results in a fresh
// room_state broadcast to all connected clients.
func (s *RoomServer) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	roomID := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/room/ws/"))
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Identity is resolved before the upgrade: a Set-Cookie written after the
	// connection is hijacked never reaches the client, so a cookie-less
	// client would mint a fresh identity on every reconnect.
	playerID, err := s.EnsureGuest(w, r)
	if err != nil {
		s.Logger.Warnf("guest auth failed for room %s: %v", roomID, err)
		http.Error(w, "could not establish session", http.StatusInternalServerError)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"spar"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "spar" {
		c.Close(BadSubprotocolError, "client must speak the spar subprotocol")
		return
	}

	room, ok := s.Rooms.Room(roomID)
	if !ok {
		// Not hosted by this process: serve a watch-only stream straight off
		// the document store if the room exists anywhere.
		s.watchRoom(r.Context(), c, roomID, playerID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	conn := &roomConn{
		PlayerID: playerID,
		Cancel:   cancel,
		OutChan:  make(chan map[string]interface{}, 16),
	}

	sess := s.session(roomID)
	sess.add(conn)
	s.Logger.Infof("player %v (%s) connected to room %s", playerID, r.RemoteAddr, roomID)

	// The connection starts with the current document, so a reconnecting
	// client is immediately caught up.
	conn.Write(stateMessage(room.Snapshot()))
	if history, err := s.Chat.History(ctx, roomID, chatHistoryLimit); err == nil {
		conn.Write(map[string]interface{}{
			"type":     "chat_history",
			"messages": history,
		})
	}

	go s.writePump(ctx, c, conn)
	s.readPump(ctx, c, room, conn)

	// Dropping the socket is not leaving the room: the seat stays until an
	// explicit leave_room.
	sess.remove(conn)
	cancel()
	s.Logger.Infof("player %v disconnected from room %s", playerID, roomID)
}

// watchRoom streams document updates for a room whose authoritative state
// machine lives in another process. Watchers can read state and use chat;
// game actions must go to the hosting process.
func (s *RoomServer) watchRoom(parent context.Context, c *websocket.Conn, roomID string, playerID uuid.UUID) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	updates, stop, err := s.Store.Subscribe(ctx, roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		c.Close(InvalidRoomIDError, "room does not exist")
		return
	} else if err != nil {
		s.Logger.WithError(err).Warnf("subscribing to room %s", roomID)
		c.Close(websocket.StatusInternalError, "could not subscribe to room")
		return
	}
	defer stop()

	conn := &roomConn{
		PlayerID: playerID,
		Cancel:   cancel,
		OutChan:  make(chan map[string]interface{}, 16),
	}
	sess := s.session(roomID)
	sess.add(conn)
	defer sess.remove(conn)
	s.Logger.Infof("player %v watching room %s via store", playerID, roomID)

	// latest tracks the last document seen, so chat can attribute senders.
	var (
		stateMu sync.Mutex
		latest  models.RoomState
	)
	if state, _, err := s.Store.Load(ctx, roomID); err == nil {
		latest = state
	}

	go s.writePump(ctx, c, conn)
	go func() {
		for state := range updates {
			stateMu.Lock()
			latest = state
			stateMu.Unlock()
			conn.Write(stateMessage(state))
		}
		// Channel closed: the room was deleted.
		cancel()
	}()

	if history, err := s.Chat.History(ctx, roomID, chatHistoryLimit); err == nil {
		conn.Write(map[string]interface{}{
			"type":     "chat_history",
			"messages": history,
		})
	}

	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("bad_request", "invalid JSON")
			continue
		}
		switch action, _ := packet["type"].(string); action {
		case "chat":
			text, _ := packet["msg"].(string)
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			stateMu.Lock()
			sender := latest.PlayerByID(playerID)
			var senderName string
			if sender != nil {
				senderName = sender.Name
			}
			stateMu.Unlock()
			if senderName == "" {
				conn.WriteError("not_in_room", game.ErrNotInRoom.Error())
				continue
			}
			chatMsg := models.ChatMessage{
				SenderID:   playerID,
				SenderName: senderName,
				Message:    text,
				Timestamp:  nowMillis(),
			}
			if err := s.Chat.Append(ctx, roomID, chatMsg); err != nil {
				s.Logger.WithError(err).Warnf("appending chat in room %s", roomID)
			}
			sess.broadcast(chatMessagePayload(chatMsg))
		case "chat_history":
			history, err := s.Chat.History(ctx, roomID, chatHistoryLimit)
			if err != nil {
				conn.WriteError("internal", "could not load chat history")
				continue
			}
			conn.Write(map[string]interface{}{
				"type":     "chat_history",
				"messages": history,
			})
		default:
			conn.WriteError("room_not_found", "room is not hosted here; reconnect to its host")
		}
	}
}

// readPump processes inbound packets until the connection closes.
func (s *RoomServer) readPump(ctx context.Context, c *websocket.Conn, room *game.Room, conn *roomConn) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				s.Logger.Warnf("room %s: read error for player %v: %v", room.ID, conn.PlayerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("bad_request", "invalid JSON")
			continue
		}

		if done := s.handleRoomMessage(ctx, packet, room, conn); done {
			return
		}
	}
}

// handleRoomMessage dispatches one action packet. It returns true when the
// connection should close (the player left or the room was destroyed).
func (s *RoomServer) handleRoomMessage(ctx context.Context, packet map[string]interface{}, room *game.Room, conn *roomConn) bool {
	action, _ := packet["type"].(string)

	switch action {
	case "join":
		name, _ := packet["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			conn.WriteError("bad_request", "name is required")
			return false
		}
		if err := room.Join(ctx, conn.PlayerID, name); err != nil {
			s.writeRoomError(conn, err)
		}

	case "start":
		if err := room.Start(ctx, conn.PlayerID); err != nil {
			s.writeRoomError(conn, err)
		}

	case "play_card":
		raw, _ := packet["card"].(string)
		card, err := models.ParseCard(raw)
		if err != nil {
			conn.WriteError("bad_request", "invalid card")
			return false
		}
		if err := room.PlayCard(ctx, conn.PlayerID, card); err != nil {
			s.writeRoomError(conn, err)
		}

	case "reset":
		if err := room.Reset(ctx, conn.PlayerID); err != nil {
			s.writeRoomError(conn, err)
		}

	case "leave_room":
		if err := room.Leave(ctx, conn.PlayerID); err != nil {
			s.writeRoomError(conn, err)
			return false
		}
		return true

	case "chat":
		msg, _ := packet["msg"].(string)
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return false
		}
		state := room.Snapshot()
		sender := state.PlayerByID(conn.PlayerID)
		if sender == nil {
			conn.WriteError("not_in_room", game.ErrNotInRoom.Error())
			return false
		}
		chatMsg := models.ChatMessage{
			SenderID:   conn.PlayerID,
			SenderName: sender.Name,
			Message:    msg,
			Timestamp:  nowMillis(),
		}
		if err := s.Chat.Append(ctx, room.ID, chatMsg); err != nil {
			s.Logger.WithError(err).Warnf("appending chat in room %s", room.ID)
		}
		s.session(room.ID).broadcast(chatMessagePayload(chatMsg))

	case "chat_history":
		history, err := s.Chat.History(ctx, room.ID, chatHistoryLimit)
		if err != nil {
			conn.WriteError("internal", "could not load chat history")
			return false
		}
		conn.Write(map[string]interface{}{
			"type":     "chat_history",
			"messages": history,
		})

	default:
		conn.WriteError("bad_request", "unknown action type: "+action)
	}
	return false
}

// writeRoomError maps a rejected action to its stable error code and reports
// it to the offending client only.
func (s *RoomServer) writeRoomError(conn *roomConn, err error) {
	if errors.Is(err, store.ErrVersionConflict) {
		conn.WriteError("write_conflict", "room changed concurrently, retry")
		return
	}
	code := game.ErrorCode(err)
	if code == "internal" {
		s.Logger.WithError(err).Error("room action failed")
		conn.WriteError(code, "internal error")
		return
	}
	conn.WriteError(code, err.Error())
}

// writePump drains the connection's out-channel onto the socket and keeps it
// alive with pings.
func (s *RoomServer) writePump(ctx context.Context, c *websocket.Conn, conn *roomConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.Logger.Warnf("marshal outgoing msg for player %v: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
