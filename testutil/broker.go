package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/ponyo877/roomchat/client/domain"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type brokerClient struct {
	id       string
	username string
	conn     *websocket.Conn

	mu   sync.Mutex // guards writes
	room string
}

func (c *brokerClient) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(envelope{Event: event, Data: data})
}

// Broker is an in-process realtime server implementing the chat event
// contract: per-room fan-out of messages, presence rosters, and typing
// state, with token-authenticated websocket upgrades.
type Broker struct {
	Server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*brokerClient]bool
	history map[string][]domain.Message
}

func NewBroker(t *testing.T) *Broker {
	t.Helper()
	b := &Broker{
		clients: make(map[*brokerClient]bool),
		history: make(map[string][]domain.Message),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

// URL is the websocket endpoint for Dial.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.Server.URL, "http")
}

// Seed pre-populates a room's history so joins deliver a snapshot.
func (b *Broker) Seed(room string, messages ...domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[room] = append(b.history[room], messages...)
}

// NewMessage mints a server-shaped message without delivering it.
func NewMessage(room, sender, content string) domain.Message {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Message{
		ID:        ulid.Make().String(),
		Content:   content,
		Sender:    domain.Sender{ID: uuid.NewString(), Username: sender},
		Room:      room,
		Type:      domain.TextMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (b *Broker) Close() {
	b.mu.Lock()
	for c := range b.clients {
		c.conn.Close()
	}
	b.mu.Unlock()
	b.Server.Close()
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	username, err := UsernameFromToken(BearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &brokerClient{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
	}
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()

	defer func() {
		b.leaveRoom(client)
		b.mu.Lock()
		delete(b.clients, client)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		b.handle(client, env)
	}
}

func (b *Broker) handle(c *brokerClient, env envelope) {
	switch env.Event {
	case domain.EventJoinRoom:
		var room string
		if json.Unmarshal(env.Data, &room) != nil {
			c.send(domain.EventError, domain.ErrorEvent{Message: "bad join_room payload"})
			return
		}
		b.joinRoom(c, domain.NormalizeRoom(room))
	case domain.EventLeaveRoom:
		b.leaveRoom(c)
	case domain.EventSendMessage:
		var payload domain.SendPayload
		if json.Unmarshal(env.Data, &payload) != nil || strings.TrimSpace(payload.Content) == "" {
			c.send(domain.EventError, domain.ErrorEvent{Message: "bad send_message payload"})
			return
		}
		b.deliver(c, payload)
	case domain.EventTypingStart, domain.EventTypingStop:
		var intent domain.TypingIntent
		if json.Unmarshal(env.Data, &intent) != nil {
			return
		}
		b.broadcast(intent.Room, c, domain.EventUserTyping, domain.TypingEvent{
			Username: c.username,
			IsTyping: env.Event == domain.EventTypingStart,
		})
	default:
		c.send(domain.EventError, domain.ErrorEvent{Message: "unknown event " + env.Event})
	}
}

func (b *Broker) joinRoom(c *brokerClient, room string) {
	b.leaveRoom(c)
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()

	b.mu.Lock()
	snapshot := domain.Snapshot{
		Room:     room,
		Messages: append([]domain.Message(nil), b.history[room]...),
	}
	b.mu.Unlock()
	c.send(domain.EventRoomMessages, snapshot)

	b.broadcast(room, nil, domain.EventUserJoined, domain.Notice{Message: c.username + " joined " + room})
	b.broadcast(room, nil, domain.EventRoomUsers, b.roster(room))
}

func (b *Broker) leaveRoom(c *brokerClient) {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.mu.Unlock()
	if room == "" {
		return
	}
	b.broadcast(room, nil, domain.EventUserLeft, domain.Notice{Message: c.username + " left " + room})
	b.broadcast(room, nil, domain.EventRoomUsers, b.roster(room))
}

func (b *Broker) deliver(c *brokerClient, payload domain.SendPayload) {
	room := domain.NormalizeRoom(payload.Room)
	msg := NewMessage(room, c.username, strings.TrimSpace(payload.Content))
	msg.Sender.ID = c.id
	b.mu.Lock()
	b.history[room] = append(b.history[room], msg)
	b.mu.Unlock()
	b.broadcast(room, nil, domain.EventNewMessage, msg)
}

// broadcast sends to every member of room except skip (nil means everyone).
func (b *Broker) broadcast(room string, skip *brokerClient, event string, payload any) {
	for _, member := range b.members(room) {
		if member == skip {
			continue
		}
		member.send(event, payload)
	}
}

func (b *Broker) members(room string) []*brokerClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	var members []*brokerClient
	for c := range b.clients {
		c.mu.Lock()
		in := c.room == room
		c.mu.Unlock()
		if in {
			members = append(members, c)
		}
	}
	return members
}

func (b *Broker) roster(room string) []string {
	names := []string{}
	for _, c := range b.members(room) {
		names = append(names, c.username)
	}
	return names
}
