// Package room tracks the current room, its ordered message log, and the
// presence and typing sets, mutating only in response to channel events
// and user intents.
package room

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/ponyo877/roomchat/client/domain"
)

// Phase is the per-room lifecycle of the synchronization machine.
type Phase int

const (
	Disconnected Phase = iota
	Joining
	Active
	Left
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// ErrNoRoom is returned when a send is attempted before any room is joined.
var ErrNoRoom = errors.New("no room joined")

// Emitter is the outbound half of a realtime channel.
type Emitter interface {
	Emit(event string, payload any) error
}

// Subscriber is the inbound half of a realtime channel.
type Subscriber interface {
	Subscribe(event string, h func(data json.RawMessage))
}

// State is the sole mutator of room, message, presence, and typing state.
// Every entry point corresponds to exactly one event or intent.
type State struct {
	mu      sync.Mutex
	phase   Phase
	room    string
	log     []domain.Message
	online  []string
	typing  map[string]struct{}
	emitter Emitter
	logger  *log.Logger
	notify  func()
}

func NewState(logger *log.Logger) *State {
	return &State{
		typing: make(map[string]struct{}),
		logger: logger,
	}
}

// OnChange registers a callback invoked after every observable mutation.
// The callback runs on whichever goroutine caused the mutation.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// SetEmitter attaches or replaces the outbound channel. A nil emitter puts
// the machine back into the disconnected phase.
func (s *State) SetEmitter(e Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = e
	if e == nil {
		s.phase = Disconnected
	}
}

// Bind attaches a channel as both emitter and event source. Inbound events
// arrive serially on the channel's read loop.
func (s *State) Bind(ch interface {
	Emitter
	Subscriber
}) {
	s.SetEmitter(ch)
	ch.Subscribe(domain.EventRoomMessages, func(data json.RawMessage) {
		var snap domain.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Printf("bad room_messages payload: %v", err)
			return
		}
		s.ApplySnapshot(snap)
	})
	ch.Subscribe(domain.EventNewMessage, func(data json.RawMessage) {
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Printf("bad new_message payload: %v", err)
			return
		}
		s.ApplyMessage(msg)
	})
	ch.Subscribe(domain.EventRoomUsers, func(data json.RawMessage) {
		var users []string
		if err := json.Unmarshal(data, &users); err != nil {
			s.logger.Printf("bad room_users payload: %v", err)
			return
		}
		s.SetRoster(users)
	})
	ch.Subscribe(domain.EventUserTyping, func(data json.RawMessage) {
		var ev domain.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Printf("bad user_typing payload: %v", err)
			return
		}
		s.SetTyping(ev.Username, ev.IsTyping)
	})
	ch.Subscribe(domain.EventUserJoined, func(data json.RawMessage) {
		s.applyNotice(data)
	})
	ch.Subscribe(domain.EventUserLeft, func(data json.RawMessage) {
		s.applyNotice(data)
	})
	ch.Subscribe(domain.EventError, func(data json.RawMessage) {
		var ev domain.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.HandleError(string(data))
			return
		}
		s.HandleError(ev.Message)
	})
}

// ChangeRoom switches the current room: leave-intent for the old room,
// join-intent for the new one, and the log and typing set are cleared
// before any event for the new room can arrive. Same-room calls are no-ops.
func (s *State) ChangeRoom(name string) error {
	name = domain.NormalizeRoom(name)
	if name == "" {
		return domain.ErrEmptyRoom
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.room {
		return nil
	}
	if s.emitter != nil {
		if s.room != "" {
			s.emit(domain.EventLeaveRoom, s.room)
		}
		s.emit(domain.EventJoinRoom, name)
		s.phase = Joining
	}
	s.room = name
	s.log = nil
	s.typing = make(map[string]struct{})
	s.notifyLocked()
	return nil
}

// Rejoin re-emits the join-intent for the current room after a reconnect,
// clearing local state so the fresh snapshot is authoritative.
func (s *State) Rejoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" || s.emitter == nil {
		return
	}
	s.emit(domain.EventJoinRoom, s.room)
	s.phase = Joining
	s.log = nil
	s.typing = make(map[string]struct{})
	s.notifyLocked()
}

// ApplySnapshot replaces the message log wholesale. Snapshots tagged with
// any room other than the current target are discarded; a join may still
// be in flight for a room the user has already left.
func (s *State) ApplySnapshot(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain.NormalizeRoom(snap.Room) != s.room {
		s.logger.Printf("discarding stale snapshot for %q (current room %q)", snap.Room, s.room)
		return
	}
	s.log = append([]domain.Message(nil), snap.Messages...)
	s.phase = Active
	s.notifyLocked()
}

// ApplyMessage appends a server-confirmed message. The log is append-only;
// the server is the single source of ordering truth.
func (s *State) ApplyMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, msg)
	s.notifyLocked()
}

// SetRoster replaces the online-user set wholesale. The roster is never
// locally inferred.
func (s *State) SetRoster(users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append([]string(nil), users...)
	s.notifyLocked()
}

// SetTyping adds or removes one username from the typing set.
func (s *State) SetTyping(username string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTyping {
		s.typing[username] = struct{}{}
	} else {
		delete(s.typing, username)
	}
	s.notifyLocked()
}

// HandleError logs a server-reported channel error. The machine stays in
// its current phase; recovery is owned by the connection loop.
func (s *State) HandleError(details string) {
	s.logger.Printf("channel error: %s", details)
}

// SendMessage emits a send-intent for the current room. Whitespace-only
// content is silently dropped; the message is never locally echoed.
func (s *State) SendMessage(content string) error {
	trimmed, err := domain.ValidateContent(content)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return ErrNoRoom
	}
	s.emit(domain.EventSendMessage, domain.SendPayload{Content: trimmed, Room: s.room})
	return nil
}

// StartTyping and StopTyping forward debounced typing intents for the
// current room. Both are no-ops without a room or a channel.
func (s *State) StartTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return
	}
	s.emit(domain.EventTypingStart, domain.TypingIntent{Room: s.room})
}

func (s *State) StopTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return
	}
	s.emit(domain.EventTypingStop, domain.TypingIntent{Room: s.room})
}

// Leave emits a final leave-intent and parks the machine. Used on teardown.
func (s *State) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != "" && s.phase != Left {
		s.emit(domain.EventLeaveRoom, s.room)
	}
	s.phase = Left
	s.typing = make(map[string]struct{})
	s.online = nil
	s.notifyLocked()
}

// Room returns the current room name, empty before the first join.
func (s *State) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// CurrentPhase returns the machine's current phase.
func (s *State) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// View is an immutable copy of the UI-ready state.
type View struct {
	Phase    Phase
	Room     string
	Messages []domain.Message
	Online   []string
	Typing   []string
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	typing := make([]string, 0, len(s.typing))
	for name := range s.typing {
		typing = append(typing, name)
	}
	sort.Strings(typing)
	return View{
		Phase:    s.phase,
		Room:     s.room,
		Messages: append([]domain.Message(nil), s.log...),
		Online:   append([]string(nil), s.online...),
		Typing:   typing,
	}
}

func (s *State) applyNotice(data json.RawMessage) {
	var n domain.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		s.logger.Printf("bad notice payload: %v", err)
		return
	}
	s.logger.Printf("%s", n.Message)
}

func (s *State) emit(event string, payload any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(event, payload); err != nil {
		s.logger.Printf("emitting %s: %v", event, err)
	}
}

func (s *State) notifyLocked() {
	if s.notify != nil {
		s.notify()
	}
}
