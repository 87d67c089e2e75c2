package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"staylink/internal/models"
	"staylink/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broker is a minimal STOMP broker for the chat destinations.
type Broker struct {
	server *Server
	logger zerolog.Logger

	mu    sync.RWMutex
	conns map[*brokerConn]bool
}

type brokerConn struct {
	broker *Broker
	ws     *gorilla.Conn
	send   chan []byte
	userID string

	mu   sync.Mutex
	subs map[string]string // subscription id -> destination
}

func newBroker(s *Server) *Broker {
	return &Broker{
		server: s,
		logger: s.logger.With().Str("part", "broker").Logger(),
		conns:  make(map[*brokerConn]bool),
	}
}

func (b *Broker) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &brokerConn{
		broker: b,
		ws:     ws,
		send:   make(chan []byte, 256),
		subs:   make(map[string]string),
	}
	// The upgrade header is one place a client may put its credential; CONNECT is the other.
	c.userID, _ = b.server.verify(bearer(r), "access")

	go c.writePump()
	c.readPump()
}

// Publish delivers msg to the room topic and then to each member's inbox.
func (b *Broker) Publish(msg models.ChatMessage, members []string) {
	body, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Msg("encode chat message")
		return
	}
	b.deliver(websocket.RoomTopic(msg.RoomID), body)
	for _, m := range members {
		b.deliver(websocket.InboxDestination(m), body)
	}
}

func (b *Broker) deliver(destination string, body []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.conns {
		for _, subID := range c.subscriptionsTo(destination) {
			frame := websocket.NewFrame(websocket.CmdMessage,
				"subscription", subID,
				"message-id", uuid.NewString(),
				"destination", destination,
				"content-type", "application/json",
			)
			frame.Body = body
			select {
			case c.send <- frame.Encode():
			default:
				b.logger.Warn().Str("user", c.userID).Msg("client too slow, dropping frame")
			}
		}
	}
}

// Subscribers counts live subscriptions to destination.
func (b *Broker) Subscribers(destination string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for c := range b.conns {
		n += len(c.subscriptionsTo(destination))
	}
	return n
}

// Connections counts sessions that completed CONNECT.
func (b *Broker) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Kick drops every connection without a DISCONNECT, as a network failure would.
func (b *Broker) Kick() {
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
		delete(b.conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// Post stores a message from senderID and pushes it to subscribers.
func (s *Server) Post(roomID, senderID, content string) (models.ChatMessage, bool) {
	msg, members, ok := s.appendMessage(roomID, senderID, content)
	if !ok {
		return models.ChatMessage{}, false
	}
	s.broker.Publish(msg, members)
	return msg, true
}

func (c *brokerConn) subscriptionsTo(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, dest := range c.subs {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *brokerConn) register() {
	c.broker.mu.Lock()
	c.broker.conns[c] = true
	c.broker.mu.Unlock()
	c.broker.logger.Debug().Str("user", c.userID).Msg("client connected")
}

func (c *brokerConn) unregister() {
	c.broker.mu.Lock()
	delete(c.broker.conns, c)
	c.broker.mu.Unlock()
}

func (c *brokerConn) readPump() {
	// The writer drains what is queued, ERROR frames included, then closes the socket.
	defer func() {
		c.unregister()
		close(c.send)
	}()

	connected := false
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				c.broker.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		frame, err := websocket.ParseFrame(data)
		if err != nil {
			c.error("malformed frame")
			return
		}
		if frame == nil {
			continue
		}

		if !connected {
			if frame.Command != websocket.CmdConnect && frame.Command != "STOMP" {
				c.error("expected CONNECT")
				return
			}
			if !c.connect(frame) {
				return
			}
			connected = true
			continue
		}

		switch frame.Command {
		case websocket.CmdSubscribe:
			c.mu.Lock()
			c.subs[frame.Get("id")] = frame.Get("destination")
			c.mu.Unlock()
		case websocket.CmdUnsubscribe:
			c.mu.Lock()
			delete(c.subs, frame.Get("id"))
			c.mu.Unlock()
		case websocket.CmdSend:
			c.handleSend(frame)
		case websocket.CmdDisconnect:
			if id := frame.Get("receipt"); id != "" {
				c.send <- websocket.NewFrame(websocket.CmdReceipt, "receipt-id", id).Encode()
			}
			return
		}
	}
}

func (c *brokerConn) connect(frame *websocket.Frame) bool {
	if v, ok := strings.CutPrefix(frame.Get("Authorization"), "Bearer "); ok {
		id, err := c.broker.server.verify(v, "access")
		if err != nil {
			c.error("authentication failed: " + err.Error())
			return false
		}
		c.userID = id
	}
	if c.userID == "" {
		c.error("authentication required")
		return false
	}

	hb := c.broker.server.opts.Heartbeat.Milliseconds()
	c.send <- websocket.NewFrame(websocket.CmdConnected,
		"version", "1.2",
		"heart-beat", fmt.Sprintf("%d,%d", hb, hb),
		"user-name", c.userID,
	).Encode()
	c.register()
	return true
}

func (c *brokerConn) handleSend(frame *websocket.Frame) {
	roomID, ok := strings.CutPrefix(frame.Get("destination"), "/app/chat/")
	if !ok {
		c.broker.logger.Debug().Str("destination", frame.Get("destination")).Msg("unknown destination")
		return
	}
	var env models.ChatEnvelope
	if err := json.Unmarshal(frame.Body, &env); err != nil || strings.TrimSpace(env.Content) == "" {
		c.broker.logger.Debug().Err(err).Msg("rejecting chat envelope")
		return
	}
	// The sender is whoever authenticated, not what the envelope claims.
	if _, ok := c.broker.server.Post(roomID, c.userID, env.Content); !ok {
		c.broker.logger.Debug().Str("room", roomID).Str("user", c.userID).Msg("send to foreign room ignored")
	}
}

func (c *brokerConn) error(message string) {
	select {
	case c.send <- websocket.NewFrame(websocket.CmdError, "message", message).Encode():
	default:
	}
}

func (c *brokerConn) writePump() {
	defer c.ws.Close()

	var tick <-chan time.Time
	if hb := c.broker.server.opts.Heartbeat; hb > 0 {
		ticker := time.NewTicker(hb)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.ws.WriteMessage(gorilla.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(gorilla.TextMessage, message); err != nil {
				return
			}
		case <-tick:
			if err := c.ws.WriteMessage(gorilla.TextMessage, []byte("\n")); err != nil {
				return
			}
		}
	}
}
