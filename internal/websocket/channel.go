// Package websocket keeps the realtime chat connection: STOMP 1.2 frames
// carried in websocket text messages, with heartbeats and automatic
// reconnect.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"staylink/internal/chat"
	"staylink/internal/logging"
	"staylink/internal/metrics"
	"staylink/internal/models"
	"staylink/internal/session"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	sendQueueSize    = 64

	// TimestampLayout is the ISO-8601 form used in outgoing envelopes.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrNoSession     = errors.New("chat: no session token")
	ErrNotConnected  = errors.New("chat: not connected")
	ErrSendQueueFull = errors.New("chat: send queue full")
	ErrNoRoom        = errors.New("chat: room id required")
	ErrEmptyMessage  = errors.New("chat: message is empty")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

func RoomTopic(roomID string) string           { return "/topic/chat/" + roomID }
func RoomSendDestination(roomID string) string { return "/app/chat/" + roomID }
func InboxDestination(userID string) string    { return "/user/" + userID + "/queue/messages" }

// Session supplies the credential and local identity for the connection.
type Session interface {
	Token() string
	Identity() (session.Identity, bool)
}

type Options struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	RoomBuffer        int
	Dialer            *websocket.Dialer
	Logger            zerolog.Logger
}

type room struct {
	id     string
	subID  string
	stream chan models.ChatMessage
}

type Channel struct {
	opts    Options
	session Session
	store   *chat.Store
	logger  zerolog.Logger

	mu      sync.Mutex
	state   State
	changed chan struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	// out queues frames for the live connection; nil while offline.
	out  chan []byte
	room *room
}

func NewChannel(sess Session, store *chat.Store, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.RoomBuffer <= 0 {
		opts.RoomBuffer = 64
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = handshakeTimeout
		opts.Dialer = &d
	}
	return &Channel{
		opts:    opts,
		session: sess,
		store:   store,
		logger:  logging.Component(opts.Logger, "realtime"),
		changed: make(chan struct{}),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug().Stringer("from", c.state).Stringer("to", s).Msg("state change")
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// Connect starts the connection loop. Without a session token it logs and
// returns ErrNoSession. Calling Connect on a running channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	if c.session.Token() == "" {
		c.logger.Error().Err(ErrNoSession).Msg("cannot open chat connection")
		return ErrNoSession
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.setStateLocked(StateConnecting)

	go c.run(runCtx, c.done)
	return nil
}

// WaitConnected blocks until the channel reaches StateConnected.
func (c *Channel) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed, running := c.state, c.changed, c.running
		c.mu.Unlock()

		if state == StateConnected {
			return nil
		}
		if !running {
			return ErrNotConnected
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Disconnect tears the connection down and waits for its goroutines.
// The active room stream is closed. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info().Msg("chat disconnected")
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.releaseRoomLocked()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		close(done)
	}()

	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrNoSession) {
			c.logger.Error().Err(err).Msg("session ended, giving up on chat connection")
			return
		}

		c.logger.Warn().Err(err).Dur("retry_in", c.opts.ReconnectDelay).Msg("chat connection lost")
		c.mu.Lock()
		c.setStateLocked(StateReconnecting)
		c.mu.Unlock()

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		metrics.ChatReconnects.Inc()
	}
}

// serve runs one connection from dial until it drops.
func (c *Channel) serve(ctx context.Context) error {
	token := c.session.Token()
	if token == "" {
		return ErrNoSession
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	defer conn.Close()

	incoming, outgoing, err := c.handshake(conn, token)
	if err != nil {
		return err
	}

	out := make(chan []byte, sendQueueSize)
	c.mu.Lock()
	c.out = out
	if id, ok := c.session.Identity(); ok {
		out <- NewFrame(CmdSubscribe, "id", "inbox-"+uuid.NewString(), "destination", InboxDestination(id.UserID)).Encode()
	}
	if c.room != nil {
		out <- subscribeFrame(c.room)
	}
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info().Str("url", c.opts.URL).Dur("heartbeat_in", incoming).Dur("heartbeat_out", outgoing).Msg("chat connected")

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, conn, out, outgoing, stop)
	}()

	err = c.readPump(conn, incoming)

	c.mu.Lock()
	c.out = nil
	c.mu.Unlock()
	close(stop)
	<-writerDone
	return err
}

func (c *Channel) handshake(conn *websocket.Conn, token string) (incoming, outgoing time.Duration, err error) {
	host := ""
	if u, err := url.Parse(c.opts.URL); err == nil {
		host = u.Hostname()
	}
	connect := NewFrame(CmdConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", fmt.Sprintf("%d,%d", c.opts.HeartbeatOutgoing.Milliseconds(), c.opts.HeartbeatIncoming.Milliseconds()),
		"Authorization", "Bearer "+token,
	)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, connect.Encode()); err != nil {
		return 0, 0, fmt.Errorf("send CONNECT: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return 0, 0, fmt.Errorf("await CONNECTED: %w", err)
		}
		frame, err := ParseFrame(data)
		if err != nil {
			return 0, 0, fmt.Errorf("await CONNECTED: %w", err)
		}
		if frame == nil {
			continue
		}

		switch frame.Command {
		case CmdConnected:
			incoming, outgoing = negotiateHeartbeat(c.opts.HeartbeatIncoming, c.opts.HeartbeatOutgoing, frame.Get("heart-beat"))
			return incoming, outgoing, nil
		case CmdError:
			return 0, 0, fmt.Errorf("broker refused connection: %s", frame.Get("message"))
		default:
			return 0, 0, fmt.Errorf("unexpected %s frame before CONNECTED", frame.Command)
		}
	}
}

// negotiateHeartbeat applies the STOMP rule: each direction uses the larger
// of the two intervals, or none if either side disables it.
func negotiateHeartbeat(in, out time.Duration, server string) (incoming, outgoing time.Duration) {
	var sx, sy time.Duration
	if a, b, ok := strings.Cut(server, ","); ok {
		x, _ := strconv.Atoi(strings.TrimSpace(a))
		y, _ := strconv.Atoi(strings.TrimSpace(b))
		sx, sy = time.Duration(x)*time.Millisecond, time.Duration(y)*time.Millisecond
	}
	if out > 0 && sy > 0 {
		outgoing = max(out, sy)
	}
	if in > 0 && sx > 0 {
		incoming = max(in, sx)
	}
	return incoming, outgoing
}

func (c *Channel) readPump(conn *websocket.Conn, incoming time.Duration) error {
	for {
		if incoming > 0 {
			// Silence for two intervals means the broker is gone.
			conn.SetReadDeadline(time.Now().Add(2 * incoming))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("skipping unreadable frame")
			continue
		}
		if frame == nil {
			continue
		}

		switch frame.Command {
		case CmdMessage:
			c.handleMessage(frame)
		case CmdReceipt:
			c.logger.Debug().Str("receipt", frame.Get("receipt-id")).Msg("receipt")
		case CmdError:
			return fmt.Errorf("broker error: %s", frame.Get("message"))
		default:
			c.logger.Debug().Str("command", frame.Command).Msg("ignoring frame")
		}
	}
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte, outgoing time.Duration, stop <-chan struct{}) {
	var tick <-chan time.Time
	if outgoing > 0 {
		ticker := time.NewTicker(outgoing)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		case <-tick:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.TextMessage, NewFrame(CmdDisconnect).Encode())
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			return
		}
	}
}

func (c *Channel) handleMessage(frame *Frame) {
	var msg models.ChatMessage
	if err := json.Unmarshal(frame.Body, &msg); err != nil {
		c.logger.Warn().Err(err).Str("destination", frame.Get("destination")).Msg("undecodable chat message")
		return
	}

	c.mu.Lock()
	r := c.room
	c.mu.Unlock()
	if msg.RoomID == "" && r != nil && frame.Get("subscription") == r.subID {
		msg.RoomID = r.id
	}
	if msg.RoomID == "" {
		c.logger.Warn().Str("destination", frame.Get("destination")).Msg("chat message without room")
		return
	}

	msg.IsMine = c.store.IsMine(msg.SenderID)
	// The inbox and the room topic may both carry a message; the store keeps one.
	if !c.store.AddMessage(msg) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil || c.room.id != msg.RoomID {
		return
	}
	select {
	case c.room.stream <- msg:
	default:
		metrics.ChatDropped.Inc()
		c.logger.Warn().Str("room", msg.RoomID).Str("message", msg.ID).Msg("room stream full, dropping delivery")
	}
}

// SetActiveRoom subscribes to roomID's topic, replacing the previous room.
// The returned stream carries new messages for the room and is closed when
// another room is activated, LeaveRoom is called or the channel stops.
func (c *Channel) SetActiveRoom(roomID string) (<-chan models.ChatMessage, error) {
	if roomID == "" {
		return nil, ErrNoRoom
	}
	c.store.SetActiveRoom(roomID)

	r := &room{
		id:     roomID,
		subID:  "room-" + uuid.NewString(),
		stream: make(chan models.ChatMessage, c.opts.RoomBuffer),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseRoomLocked()
	c.room = r
	if c.out != nil {
		if err := c.enqueueLocked(subscribeFrame(r)); err != nil {
			c.logger.Warn().Err(err).Str("room", roomID).Msg("subscribe deferred to next connect")
		}
	}
	return r.stream, nil
}

// LeaveRoom unsubscribes the active room and closes its stream.
func (c *Channel) LeaveRoom() {
	c.mu.Lock()
	c.releaseRoomLocked()
	c.mu.Unlock()
	c.store.SetActiveRoom("")
}

func (c *Channel) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return ""
	}
	return c.room.id
}

func (c *Channel) releaseRoomLocked() {
	if c.room == nil {
		return
	}
	if c.out != nil {
		c.enqueueLocked(NewFrame(CmdUnsubscribe, "id", c.room.subID).Encode())
	}
	close(c.room.stream)
	c.room = nil
}

func (c *Channel) enqueueLocked(data []byte) error {
	select {
	case c.out <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func subscribeFrame(r *room) []byte {
	return NewFrame(CmdSubscribe, "id", r.subID, "destination", RoomTopic(r.id)).Encode()
}

// SendMessage publishes content to roomID without waiting for delivery. A
// pending copy is stored right away and replaced when the echo arrives.
func (c *Channel) SendMessage(roomID, content string) error {
	if roomID == "" {
		return ErrNoRoom
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if c.State() != StateConnected {
		return fmt.Errorf("send to room %s: %w", roomID, ErrNotConnected)
	}
	id, ok := c.session.Identity()
	if !ok {
		return fmt.Errorf("send to room %s: %w", roomID, ErrNoSession)
	}

	now := time.Now().UTC()
	body, err := json.Marshal(models.ChatEnvelope{
		RoomID:     roomID,
		SenderID:   id.UserID,
		SenderName: id.Name,
		Content:    content,
		Timestamp:  now.Format(TimestampLayout),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	frame := NewFrame(CmdSend, "destination", RoomSendDestination(roomID), "content-type", "application/json")
	frame.Body = body

	local := models.ChatMessage{
		ID:         "local-" + uuid.NewString(),
		RoomID:     roomID,
		SenderID:   id.UserID,
		SenderName: id.Name,
		Content:    content,
		Timestamp:  now,
		IsMine:     true,
		Pending:    true,
	}
	// Stored before publishing so an early echo always finds it.
	c.store.AddMessage(local)

	c.mu.Lock()
	if c.out == nil {
		err = fmt.Errorf("send to room %s: %w", roomID, ErrNotConnected)
	} else {
		err = c.enqueueLocked(frame.Encode())
	}
	c.mu.Unlock()

	if err != nil {
		c.store.RemoveMessage(roomID, local.ID)
		return err
	}
	return nil
}
