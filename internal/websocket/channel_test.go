package websocket_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"staylink/internal/chat"
	"staylink/internal/mockapi"
	"staylink/internal/models"
	"staylink/internal/session"
	"staylink/internal/websocket"
)

type fixture struct {
	mock    *mockapi.Server
	session *session.Store
	store   *chat.Store
	channel *websocket.Channel
	roomID  string
}

func newFixture(t *testing.T, buffer int) *fixture {
	t.Helper()

	mock := mockapi.New(mockapi.Options{Logger: zerolog.Nop()})
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	sess := session.NewStore(nil, zerolog.Nop())
	sess.SetToken(mock.IssueToken(mockapi.GuestID, time.Hour))

	selfID := func() string {
		id, _ := sess.Identity()
		return id.UserID
	}
	store := chat.NewStore(nil, selfID, 30, zerolog.Nop())

	ch := websocket.NewChannel(sess, store, websocket.Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		ReconnectDelay: 50 * time.Millisecond,
		RoomBuffer:     buffer,
		Logger:         zerolog.Nop(),
	})
	t.Cleanup(ch.Disconnect)

	return &fixture{
		mock:    mock,
		session: sess,
		store:   store,
		channel: ch,
		roomID:  mock.CreateRoom(mockapi.GuestID, mockapi.HostID),
	}
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	if err := f.channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := f.channel.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
	eventually(t, "inbox subscription", func() bool {
		return f.mock.Broker().Subscribers(websocket.InboxDestination(mockapi.GuestID)) == 1
	})
}

func (f *fixture) enterRoom(t *testing.T) <-chan models.ChatMessage {
	t.Helper()
	stream, err := f.channel.SetActiveRoom(f.roomID)
	if err != nil {
		t.Fatalf("SetActiveRoom() error = %v", err)
	}
	eventually(t, "room subscription", func() bool {
		return f.mock.Broker().Subscribers(websocket.RoomTopic(f.roomID)) == 1
	})
	return stream
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func receive(t *testing.T, stream <-chan models.ChatMessage) models.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-stream:
		if !ok {
			t.Fatal("stream closed")
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no message on stream")
	}
	return models.ChatMessage{}
}

func TestConnectWithoutSession(t *testing.T) {
	f := newFixture(t, 8)
	f.session.Clear()

	if err := f.channel.Connect(context.Background()); !errors.Is(err, websocket.ErrNoSession) {
		t.Fatalf("Connect() error = %v, want ErrNoSession", err)
	}
	if got := f.channel.State(); got != websocket.StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	f := newFixture(t, 8)

	err := f.channel.SendMessage(f.roomID, "hello")
	if !errors.Is(err, websocket.ErrNotConnected) {
		t.Fatalf("SendMessage() error = %v, want ErrNotConnected", err)
	}
	if msgs := f.store.Messages(f.roomID); len(msgs) != 0 {
		t.Errorf("store holds %d messages after a rejected send", len(msgs))
	}
}

func TestRoomMessagesReachStreamAndStore(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)
	stream := f.enterRoom(t)

	if _, ok := f.mock.Post(f.roomID, mockapi.HostID, "체크인은 3시부터예요"); !ok {
		t.Fatal("Post() rejected")
	}

	msg := receive(t, stream)
	if msg.Content != "체크인은 3시부터예요" || msg.IsMine {
		t.Errorf("stream message = %+v", msg)
	}

	// Room topic and inbox both carry the message; it is stored once.
	time.Sleep(50 * time.Millisecond)
	if msgs := f.store.Messages(f.roomID); len(msgs) != 1 {
		t.Fatalf("store holds %d messages, want 1", len(msgs))
	}
	room, _ := f.store.Room(f.roomID)
	if room.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d for the active room", room.UnreadCount)
	}
	if room.LastMessage != "체크인은 3시부터예요" {
		t.Errorf("LastMessage = %q", room.LastMessage)
	}
}

func TestSendMessageEcho(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)
	stream := f.enterRoom(t)

	if err := f.channel.SendMessage(f.roomID, "주차 가능한가요?"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	echo := receive(t, stream)
	if !echo.IsMine || echo.SenderID != mockapi.GuestID || echo.Content != "주차 가능한가요?" {
		t.Errorf("echo = %+v", echo)
	}

	eventually(t, "pending copy replaced", func() bool {
		msgs := f.store.Messages(f.roomID)
		return len(msgs) == 1 && !msgs[0].Pending && msgs[0].ID == echo.ID
	})
}

func TestInboxMessageForInactiveRoom(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)

	other := f.mock.AddUser("friend@stay.example", "friend123!", "친구")
	otherRoom := f.mock.CreateRoom(mockapi.GuestID, other)
	stream := f.enterRoom(t)

	f.mock.Post(otherRoom, other, "안녕!")
	f.mock.Post(otherRoom, other, "답장 주세요")

	eventually(t, "inbox delivery", func() bool {
		return len(f.store.Messages(otherRoom)) == 2
	})
	room, ok := f.store.Room(otherRoom)
	if !ok {
		t.Fatal("room for inbox message was not created")
	}
	if room.UnreadCount != 2 || room.CounterpartID != other {
		t.Errorf("room = %+v", room)
	}
	select {
	case msg := <-stream:
		t.Errorf("active room stream got %+v from another room", msg)
	default:
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)
	stream := f.enterRoom(t)

	f.mock.Broker().Kick()
	eventually(t, "reconnect", func() bool {
		return f.channel.State() == websocket.StateConnected &&
			f.mock.Broker().Subscribers(websocket.RoomTopic(f.roomID)) == 1 &&
			f.mock.Broker().Subscribers(websocket.InboxDestination(mockapi.GuestID)) == 1
	})

	f.mock.Post(f.roomID, mockapi.HostID, "다시 연결됐나요?")
	if msg := receive(t, stream); msg.Content != "다시 연결됐나요?" {
		t.Errorf("message after reconnect = %+v", msg)
	}
}

func TestSwitchingRoomsClosesPreviousStream(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)
	first := f.enterRoom(t)

	other := f.mock.AddUser("friend@stay.example", "friend123!", "친구")
	second, err := f.channel.SetActiveRoom(f.mock.CreateRoom(mockapi.GuestID, other))
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := <-first; ok {
		t.Error("previous room stream still open")
	}
	eventually(t, "unsubscribe", func() bool {
		return f.mock.Broker().Subscribers(websocket.RoomTopic(f.roomID)) == 0
	})

	f.channel.LeaveRoom()
	if _, ok := <-second; ok {
		t.Error("stream still open after LeaveRoom")
	}
	if f.store.ActiveRoom() != "" {
		t.Errorf("store active room = %q", f.store.ActiveRoom())
	}
}

func TestSlowConsumerDropsStreamNotStore(t *testing.T) {
	f := newFixture(t, 1)
	f.connect(t)
	stream := f.enterRoom(t)

	for _, text := range []string{"하나", "둘", "셋"} {
		f.mock.Post(f.roomID, mockapi.HostID, text)
	}

	eventually(t, "all messages stored", func() bool {
		return len(f.store.Messages(f.roomID)) == 3
	})
	if n := len(stream); n != 1 {
		t.Errorf("stream buffered %d messages, want 1", n)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t, 8)
	f.connect(t)
	stream := f.enterRoom(t)

	f.channel.Disconnect()
	f.channel.Disconnect()

	if got := f.channel.State(); got != websocket.StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if _, ok := <-stream; ok {
		t.Error("stream still open after Disconnect")
	}
	if err := f.channel.SendMessage(f.roomID, "hello"); !errors.Is(err, websocket.ErrNotConnected) {
		t.Errorf("SendMessage() after Disconnect error = %v", err)
	}
	eventually(t, "broker sees disconnect", func() bool {
		return f.mock.Broker().Connections() == 0
	})
}

func TestRejectedCredentialKeepsRetrying(t *testing.T) {
	f := newFixture(t, 8)
	f.session.SetToken(f.mock.IssueToken(mockapi.GuestID, -time.Minute))

	if err := f.channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	eventually(t, "reconnecting state", func() bool {
		return f.channel.State() == websocket.StateReconnecting
	})
	if f.mock.Broker().Connections() != 0 {
		t.Error("broker accepted an expired token")
	}
}
