// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kwadwoansah/spar/internal/auth"
	"github.com/kwadwoansah/spar/internal/store"
)

// EnsureGuest resolves the caller's guest identity from the auth_token
// cookie, minting a new session (and setting the cookie) when the request
// carries none or an invalid one.
func (s *RoomServer) EnsureGuest(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if token := extractCookieToken(r.Header.Get("Cookie"), "auth_token"); token != "" {
		if id, err := auth.AuthenticateJWT(token); err == nil {
			return id, nil
		}
	}

	id, token, err := auth.NewGuestSession()
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// CreateRoomHandler handles POST /room/create. The caller becomes the seated
// host; the response is the room's full document.
func (s *RoomServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	playerID, err := s.EnsureGuest(w, r)
	if err != nil {
		s.Logger.WithError(err).Warn("minting guest session")
		http.Error(w, "could not establish session", http.StatusInternalServerError)
		return
	}

	var req struct {
		Name        string `json:"name"`
		TargetScore int    `json:"targetScore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	room, err := s.CreateRoom(r.Context(), playerID, strings.TrimSpace(req.Name), req.TargetScore)
	if err != nil {
		s.Logger.WithError(err).Error("creating room")
		http.Error(w, "could not create room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(room.Snapshot())
}

// RoomStateHandler handles GET /room/state/{id}: a point-in-time read of the
// room document, served from the live room when this process hosts it and
// from the store otherwise.
func (s *RoomServer) RoomStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/room/state/")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	roomID = strings.ToUpper(roomID)

	if room, ok := s.Rooms.Room(roomID); ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(room.Snapshot())
		return
	}

	state, _, err := s.Store.Load(r.Context(), roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.Logger.WithError(err).Errorf("loading room %s", roomID)
		http.Error(w, "could not load room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
