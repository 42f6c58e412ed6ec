package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxContentLength is the server-enforced cap on message content.
const MaxContentLength = 1000

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrEmptyRoom      = errors.New("room name is empty")
)

type MessageType int

const (
	TextMessage MessageType = iota
	ImageMessage
	FileMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case ImageMessage:
		return "image"
	case FileMessage:
		return "file"
	default:
		return "unknown"
	}
}

func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "text", "":
		return TextMessage, nil
	case "image":
		return ImageMessage, nil
	case "file":
		return FileMessage, nil
	default:
		return TextMessage, fmt.Errorf("unknown message type %q", s)
	}
}

func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MessageType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Sender is the identity reference embedded in a message.
type Sender struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Message is a server-confirmed chat message. The client never constructs
// one itself; messages only enter the local log once the server echoes them.
type Message struct {
	ID        string      `json:"_id"`
	Content   string      `json:"content"`
	Sender    Sender      `json:"sender"`
	Room      string      `json:"room"`
	Type      MessageType `json:"messageType"`
	Edited    bool        `json:"edited"`
	EditedAt  *time.Time  `json:"editedAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (m Message) IsValid() bool {
	return m.ID != "" && m.Content != "" && m.Room != ""
}

// ValidateContent trims content and checks the bounds the server would
// reject anyway, so no intent is emitted for an invalid payload.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if len(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// NormalizeRoom canonicalizes a room name. Room identity is
// case-insensitive and whitespace-trimmed.
func NormalizeRoom(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
