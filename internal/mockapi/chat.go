package mockapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"staylink/internal/models"
)

// CreateRoom opens a room between two users, or returns the existing one.
func (s *Server) CreateRoom(a, b string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomBetweenLocked(a, b).id
}

func (s *Server) roomBetweenLocked(a, b string) *chatRoom {
	for _, room := range s.rooms {
		if (room.members[0] == a && room.members[1] == b) || (room.members[0] == b && room.members[1] == a) {
			return room
		}
	}
	room := &chatRoom{
		id:      "room-" + uuid.NewString()[:8],
		members: [2]string{a, b},
		unread:  make(map[string]int),
	}
	s.rooms[room.id] = room
	return room
}

func (room *chatRoom) has(userID string) bool {
	return room.members[0] == userID || room.members[1] == userID
}

func (room *chatRoom) counterpart(userID string) string {
	if room.members[0] == userID {
		return room.members[1]
	}
	return room.members[0]
}

// appendMessage stores a message sent by senderID and returns it as delivered.
func (s *Server) appendMessage(roomID, senderID, content string) (models.ChatMessage, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || !room.has(senderID) {
		return models.ChatMessage{}, nil, false
	}
	name := ""
	if u, ok := s.users[senderID]; ok {
		name = u.profile.Nickname
	}
	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: name,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	room.messages = append(room.messages, msg)
	room.unread[room.counterpart(senderID)]++
	return msg, room.members[:], true
}

func (s *Server) roomView(room *chatRoom, userID string) models.ChatRoom {
	other := room.counterpart(userID)
	view := models.ChatRoom{
		RoomID:        room.id,
		CounterpartID: other,
		UnreadCount:   room.unread[userID],
	}
	if u, ok := s.users[other]; ok {
		view.CounterpartName = u.profile.Nickname
		view.CounterpartAvatar = u.profile.AvatarURL
	}
	if n := len(room.messages); n > 0 {
		view.LastMessage = room.messages[n-1].Content
		view.LastMessageTimestamp = room.messages[n-1].Timestamp
	}
	return view
}

func (s *Server) handleChatRooms(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	s.mu.Lock()
	out := []models.ChatRoom{}
	for _, room := range s.rooms {
		if room.has(userID) {
			out = append(out, s.roomView(room, userID))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTimestamp.After(out[j].LastMessageTimestamp)
	})
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req models.StartChatRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.CounterpartID]; !ok || req.CounterpartID == userID {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "대화 상대를 찾을 수 없습니다.")
		return
	}
	room := s.roomBetweenLocked(userID, req.CounterpartID)
	respondJSON(w, http.StatusOK, s.roomView(room, userID))
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	s.mu.Lock()
	room, ok := s.rooms[chi.URLParam(r, "roomId")]
	if !ok || !room.has(userID) {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "NOT_FOUND", "채팅방을 찾을 수 없습니다.")
		return
	}
	// History pages run newest first.
	newest := make([]models.ChatMessage, len(room.messages))
	for i, m := range room.messages {
		newest[len(room.messages)-1-i] = m
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, paginate(newest, r, 30))
}

func (s *Server) handleChatRead(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[chi.URLParam(r, "roomId")]
	if !ok || !room.has(userID) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "채팅방을 찾을 수 없습니다.")
		return
	}
	room.unread[userID] = 0
	w.WriteHeader(http.StatusNoContent)
}
