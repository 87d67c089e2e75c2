package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"staylink/internal/logging"
	"staylink/internal/models"
)

// HistoryFetcher loads one page of a room's history, newest first.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, roomID string, page, size int) (*models.Page[models.ChatMessage], error)
}

type EventKind int

const (
	RoomAdded EventKind = iota
	RoomUpdated
	MessageAdded
	HistoryLoaded
	ActiveRoomChanged
)

type Event struct {
	Kind    EventKind
	RoomID  string
	Message *models.ChatMessage
}

type history struct {
	nextPage int
	hasMore  bool
	loading  bool
	// generation changes whenever the room is reset so late pages are discarded.
	generation int
}

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*models.ChatRoom
	messages map[string][]models.ChatMessage
	history  map[string]*history
	active   string

	fetcher  HistoryFetcher
	pageSize int
	selfID   func() string

	observers map[int]func(Event)
	nextObs   int
	logger    zerolog.Logger
}

// NewStore builds an empty store. selfID reports the local user's id and
// decides which messages are mine.
func NewStore(fetcher HistoryFetcher, selfID func() string, pageSize int, logger zerolog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 30
	}
	if selfID == nil {
		selfID = func() string { return "" }
	}
	return &Store{
		rooms:     make(map[string]*models.ChatRoom),
		messages:  make(map[string][]models.ChatMessage),
		history:   make(map[string]*history),
		fetcher:   fetcher,
		pageSize:  pageSize,
		selfID:    selfID,
		observers: make(map[int]func(Event)),
		logger:    logging.Component(logger, "chat"),
	}
}

// IsMine reports whether senderID is the local user.
func (s *Store) IsMine(senderID string) bool {
	self := s.selfID()
	return self != "" && senderID == self
}

// AddRoom registers a room. Rooms already known are left untouched.
func (s *Store) AddRoom(room models.ChatRoom) bool {
	s.mu.Lock()
	if _, ok := s.rooms[room.RoomID]; ok || room.RoomID == "" {
		s.mu.Unlock()
		return false
	}
	r := room
	s.rooms[room.RoomID] = &r
	s.mu.Unlock()

	s.emit(Event{Kind: RoomAdded, RoomID: room.RoomID})
	return true
}

// AddMessage inserts msg in timestamp order and updates its room summary.
// Returns false for a duplicate id.
func (s *Store) AddMessage(msg models.ChatMessage) bool {
	if msg.RoomID == "" {
		return false
	}
	if !msg.Pending {
		msg.IsMine = s.IsMine(msg.SenderID)
	}

	s.mu.Lock()
	msgs := s.messages[msg.RoomID]
	if msg.ID != "" && indexOf(msgs, msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	if msg.IsMine && !msg.Pending {
		// The server echo replaces the optimistic copy.
		if i := pendingMatch(msgs, msg); i >= 0 {
			msgs = append(msgs[:i], msgs[i+1:]...)
		}
	}
	s.messages[msg.RoomID] = insertSorted(msgs, msg)

	room, created := s.roomLocked(msg)
	if !msg.Timestamp.Before(room.LastMessageTimestamp) {
		room.LastMessage = msg.Content
		room.LastMessageTimestamp = msg.Timestamp
	}
	if msg.RoomID != s.active && !msg.IsMine {
		room.UnreadCount++
	}
	s.mu.Unlock()

	if created {
		s.emit(Event{Kind: RoomAdded, RoomID: msg.RoomID})
	}
	m := msg
	s.emit(Event{Kind: MessageAdded, RoomID: msg.RoomID, Message: &m})
	return true
}

// RemoveMessage drops a message, used to withdraw a pending copy that was
// never published.
func (s *Store) RemoveMessage(roomID, id string) bool {
	s.mu.Lock()
	msgs := s.messages[roomID]
	i := indexOf(msgs, id)
	if i >= 0 {
		s.messages[roomID] = append(msgs[:i], msgs[i+1:]...)
	}
	s.mu.Unlock()

	if i < 0 {
		return false
	}
	s.emit(Event{Kind: RoomUpdated, RoomID: roomID})
	return true
}

// roomLocked returns the room for msg, creating a placeholder for rooms first
// seen through a pushed message.
func (s *Store) roomLocked(msg models.ChatMessage) (*models.ChatRoom, bool) {
	if room, ok := s.rooms[msg.RoomID]; ok {
		return room, false
	}
	room := &models.ChatRoom{RoomID: msg.RoomID}
	if !msg.IsMine {
		room.CounterpartID = msg.SenderID
		room.CounterpartName = msg.SenderName
	}
	s.rooms[msg.RoomID] = room
	return room, true
}

// LoadMoreMessages fetches the next older page of roomID and merges it.
// It returns how many messages were added; once the server reports no
// further pages, or while another load of the room is pending, it returns 0
// without calling the fetcher.
func (s *Store) LoadMoreMessages(ctx context.Context, roomID string) (int, error) {
	if s.fetcher == nil {
		return 0, fmt.Errorf("no history source configured")
	}

	s.mu.Lock()
	h := s.historyLocked(roomID)
	if !h.hasMore || h.loading {
		s.mu.Unlock()
		return 0, nil
	}
	h.loading = true
	page, gen := h.nextPage, h.generation
	s.mu.Unlock()

	result, err := s.fetcher.FetchMessages(ctx, roomID, page, s.pageSize)

	s.mu.Lock()
	h = s.historyLocked(roomID)
	if h.generation == gen {
		h.loading = false
	}
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("load history of room %s: %w", roomID, err)
	}
	if h.generation != gen {
		s.mu.Unlock()
		s.logger.Debug().Str("room", roomID).Msg("discarding history page for reset room")
		return 0, nil
	}

	added := 0
	msgs := s.messages[roomID]
	// Pages arrive newest first; walking backwards prepends in chronological order.
	for i := len(result.Contents) - 1; i >= 0; i-- {
		m := result.Contents[i]
		if m.RoomID == "" {
			m.RoomID = roomID
		}
		if m.ID != "" && indexOf(msgs, m.ID) >= 0 {
			continue
		}
		m.IsMine = s.IsMine(m.SenderID)
		msgs = insertSorted(msgs, m)
		added++
	}
	s.messages[roomID] = msgs
	h.nextPage = page + 1
	h.hasMore = result.HasNext && len(result.Contents) > 0

	if room, ok := s.rooms[roomID]; ok && room.LastMessageTimestamp.IsZero() && len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		room.LastMessage = last.Content
		room.LastMessageTimestamp = last.Timestamp
	}
	s.mu.Unlock()

	s.emit(Event{Kind: HistoryLoaded, RoomID: roomID})
	return added, nil
}

// HasMore reports whether older history may still be fetched for roomID.
func (s *Store) HasMore(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[roomID]
	return !ok || h.hasMore
}

func (s *Store) historyLocked(roomID string) *history {
	h, ok := s.history[roomID]
	if !ok {
		h = &history{nextPage: 1, hasMore: true}
		s.history[roomID] = h
	}
	return h
}

// SetActiveRoom makes roomID the visible room: its buffer and paging are
// reset and its unread count cleared. An empty id deactivates.
func (s *Store) SetActiveRoom(roomID string) {
	s.mu.Lock()
	if s.active != "" && s.active != roomID {
		delete(s.messages, s.active)
		s.resetHistoryLocked(s.active)
	}
	s.active = roomID
	if roomID != "" {
		delete(s.messages, roomID)
		s.resetHistoryLocked(roomID)
		if room, ok := s.rooms[roomID]; ok {
			room.UnreadCount = 0
		}
	}
	s.mu.Unlock()

	s.emit(Event{Kind: ActiveRoomChanged, RoomID: roomID})
}

func (s *Store) resetHistoryLocked(roomID string) {
	h := s.historyLocked(roomID)
	h.nextPage = 1
	h.hasMore = true
	h.loading = false
	h.generation++
}

func (s *Store) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// MarkRead zeroes the unread count of roomID.
func (s *Store) MarkRead(roomID string) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if ok {
		room.UnreadCount = 0
	}
	s.mu.Unlock()

	if ok {
		s.emit(Event{Kind: RoomUpdated, RoomID: roomID})
	}
}

func (s *Store) Room(roomID string) (models.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, false
	}
	return *room, true
}

// Rooms returns copies ordered by most recent message first.
func (s *Store) Rooms() []models.ChatRoom {
	s.mu.RLock()
	out := make([]models.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageTimestamp.Equal(out[j].LastMessageTimestamp) {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].LastMessageTimestamp.After(out[j].LastMessageTimestamp)
	})
	return out
}

// Messages returns a copy of roomID's messages in ascending timestamp order.
func (s *Store) Messages(roomID string) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Subscribe registers fn for store changes. fn runs on the mutating goroutine.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func indexOf(msgs []models.ChatMessage, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func pendingMatch(msgs []models.ChatMessage, echo models.ChatMessage) int {
	for i := range msgs {
		if msgs[i].Pending && msgs[i].SenderID == echo.SenderID && msgs[i].Content == echo.Content {
			return i
		}
	}
	return -1
}

// insertSorted places m after every message with an equal or earlier timestamp.
func insertSorted(msgs []models.ChatMessage, m models.ChatMessage) []models.ChatMessage {
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	msgs = append(msgs, models.ChatMessage{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	return msgs
}

// DayGroup is one calendar day of messages.
type DayGroup struct {
	Day      time.Time
	Messages []models.ChatMessage
}

// GroupByDay splits roomID's messages by calendar day in loc, oldest first.
func (s *Store) GroupByDay(roomID string, loc *time.Location) []DayGroup {
	return GroupByDay(s.Messages(roomID), loc)
}

func GroupByDay(msgs []models.ChatMessage, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	sorted := make([]models.ChatMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var groups []DayGroup
	for _, m := range sorted {
		t := m.Timestamp.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Day: day, Messages: []models.ChatMessage{m}})
	}
	return groups
}
