// Package history keeps a local archive of server-confirmed messages so
// past conversations can be browsed offline.
package history

import (
	"database/sql"
	"fmt"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ponyo877/roomchat/client/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	room         TEXT NOT NULL,
	sender       TEXT NOT NULL,
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at);
`

type Archive struct {
	db *sql.DB
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Append records one confirmed message. Re-delivered messages (for example
// inside a post-reconnect snapshot) are ignored by id.
func (a *Archive) Append(m domain.Message) error {
	if !m.IsValid() {
		return fmt.Errorf("refusing to archive invalid message %q", m.ID)
	}
	query := `INSERT OR IGNORE INTO messages (id, room, sender, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := a.db.Exec(query, m.ID, domain.NormalizeRoom(m.Room), m.Sender.Username, m.Content, m.Type.String(), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", m.ID, err)
	}
	return nil
}

// Recent returns up to limit archived messages for a room, oldest first.
func (a *Archive) Recent(room string, limit int) ([]domain.Message, error) {
	query := `SELECT id, room, sender, content, message_type, created_at
		FROM messages WHERE room = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := a.db.Query(query, domain.NormalizeRoom(room), limit)
	if err != nil {
		return nil, fmt.Errorf("querying archive for %s: %w", room, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var msgType string
		if err := rows.Scan(&m.ID, &m.Room, &m.Sender.Username, &m.Content, &msgType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning archived message: %w", err)
		}
		if m.Type, err = domain.ParseMessageType(msgType); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading archive rows: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// Rooms lists every room with at least one archived message.
func (a *Archive) Rooms() ([]string, error) {
	rows, err := a.db.Query(`SELECT DISTINCT room FROM messages ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("listing archived rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("scanning room name: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
