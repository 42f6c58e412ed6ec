package history

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ponyo877/roomchat/client/domain"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	return archive
}

func archivedMessage(id, room, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		Content:   content,
		Sender:    domain.Sender{ID: "u-" + sender, Username: sender},
		Room:      room,
		Type:      domain.TextMessage,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestAppendAndRecent(t *testing.T) {
	archive := newTestArchive(t)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	msgs := []domain.Message{
		archivedMessage("m1", "tech", "alice", "one", base),
		archivedMessage("m2", "tech", "bob", "two", base.Add(time.Minute)),
		archivedMessage("m3", "general", "alice", "elsewhere", base.Add(2*time.Minute)),
	}
	for _, m := range msgs {
		if err := archive.Append(m); err != nil {
			t.Fatalf("Append(%s) error = %v", m.ID, err)
		}
	}

	got, err := archive.Recent("tech", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if want := []string{"m1", "m2"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Recent(tech) ids = %v, want %v (oldest first)", ids, want)
	}
	if got[0].Sender.Username != "alice" || got[0].Content != "one" {
		t.Errorf("Recent(tech)[0] = %+v", got[0])
	}
}

func TestAppendIgnoresRedelivery(t *testing.T) {
	archive := newTestArchive(t)
	m := archivedMessage("m1", "tech", "alice", "one", time.Now().UTC())

	// the same message arrives again inside a post-reconnect snapshot
	if err := archive.Append(m); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := archive.Append(m); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	got, err := archive.Recent("tech", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Recent() = %d messages, want 1 after redelivery", len(got))
	}
}

func TestAppendRejectsInvalidMessage(t *testing.T) {
	archive := newTestArchive(t)
	if err := archive.Append(domain.Message{Content: "no id"}); err == nil {
		t.Error("Append() of an invalid message should fail")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	archive := newTestArchive(t)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	ids := []string{"m1", "m2", "m3", "m4"}
	for i, id := range ids {
		m := archivedMessage(id, "tech", "alice", id, base.Add(time.Duration(i)*time.Minute))
		if err := archive.Append(m); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}

	got, err := archive.Recent("tech", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	// the newest two, still oldest first
	if len(got) != 2 || got[0].ID != "m3" || got[1].ID != "m4" {
		t.Errorf("Recent(limit=2) = %+v, want m3 then m4", got)
	}
}

func TestRooms(t *testing.T) {
	archive := newTestArchive(t)
	now := time.Now().UTC()
	archive.Append(archivedMessage("m1", "tech", "alice", "a", now))
	archive.Append(archivedMessage("m2", "general", "alice", "b", now))
	archive.Append(archivedMessage("m3", "tech", "bob", "c", now))

	rooms, err := archive.Rooms()
	if err != nil {
		t.Fatalf("Rooms() error = %v", err)
	}
	if want := []string{"general", "tech"}; !reflect.DeepEqual(rooms, want) {
		t.Errorf("Rooms() = %v, want %v", rooms, want)
	}
}
