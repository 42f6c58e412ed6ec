package domain

// Outbound intents (client → server, fire-and-forget).
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Inbound events (server → client).
const (
	EventRoomMessages = "room_messages"
	EventNewMessage   = "new_message"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventRoomUsers    = "room_users"
	EventUserTyping   = "user_typing"
	EventError        = "error"
)

// SendPayload is the body of a send_message intent.
type SendPayload struct {
	Content string `json:"content"`
	Room    string `json:"room"`
}

// TypingIntent is the body of typing_start and typing_stop intents.
type TypingIntent struct {
	Room string `json:"room"`
}

// Snapshot is the bulk ordered message list delivered on joining a room.
// The room tag lets a client discard snapshots for rooms it has since left.
type Snapshot struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// TypingEvent reports a remote user's typing state.
type TypingEvent struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// Notice carries the human-readable text of user_joined / user_left events.
type Notice struct {
	Message string `json:"message"`
}

// ErrorEvent carries server-reported channel errors.
type ErrorEvent struct {
	Message string `json:"message"`
}
