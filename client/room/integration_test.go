package room

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/client/domain"
	"github.com/ponyo877/roomchat/client/realtime"
	"github.com/ponyo877/roomchat/client/session"
	"github.com/ponyo877/roomchat/testutil"
)

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// The full client path: login, connect with the issued token, join a room,
// receive the snapshot, then live updates from another participant.
func TestLoginConnectAndSync(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")

	broker := testutil.NewBroker(t)
	m1 := testutil.NewMessage("tech", "carol", "first")
	m2 := testutil.NewMessage("tech", "carol", "second")
	broker.Seed("tech", m1, m2)

	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "config.yaml"))
	logger := log.New(io.Discard, "", 0)
	store := session.NewStore(v, auth.URL(), logger)

	sess, err := store.Login(context.Background(), "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	ch, err := realtime.Dial(context.Background(), broker.URL(), sess.Token, logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ch.Close()

	st := NewState(logger)
	st.Bind(ch)

	if err := st.ChangeRoom("general"); err != nil {
		t.Fatalf("ChangeRoom(general) error = %v", err)
	}
	waitFor(t, "general to become active", func() bool {
		return st.CurrentPhase() == Active
	})

	if err := st.ChangeRoom("tech"); err != nil {
		t.Fatalf("ChangeRoom(tech) error = %v", err)
	}
	waitFor(t, "tech snapshot", func() bool {
		view := st.View()
		return view.Phase == Active && len(view.Messages) == 2
	})
	view := st.View()
	if view.Messages[0].ID != m1.ID || view.Messages[1].ID != m2.ID {
		t.Errorf("snapshot order = %s, %s; want %s, %s",
			view.Messages[0].ID, view.Messages[1].ID, m1.ID, m2.ID)
	}

	// a second participant joins and speaks
	bobToken := testutil.MintToken(t, "bob", time.Hour)
	bob, err := realtime.Dial(context.Background(), broker.URL(), bobToken, logger)
	if err != nil {
		t.Fatalf("Dial(bob) error = %v", err)
	}
	defer bob.Close()
	if err := bob.Emit(domain.EventJoinRoom, "tech"); err != nil {
		t.Fatalf("bob join error = %v", err)
	}

	waitFor(t, "roster with both users", func() bool {
		return len(st.View().Online) == 2
	})

	if err := bob.Emit(domain.EventSendMessage, domain.SendPayload{Content: "hello", Room: "tech"}); err != nil {
		t.Fatalf("bob send error = %v", err)
	}
	waitFor(t, "the live message", func() bool {
		view := st.View()
		return len(view.Messages) == 3 && view.Messages[2].Content == "hello"
	})

	// typing indicators round-trip
	if err := bob.Emit(domain.EventTypingStart, domain.TypingIntent{Room: "tech"}); err != nil {
		t.Fatalf("bob typing_start error = %v", err)
	}
	waitFor(t, "bob typing", func() bool {
		typing := st.View().Typing
		return len(typing) == 1 && typing[0] == "bob"
	})
	if err := bob.Emit(domain.EventTypingStop, domain.TypingIntent{Room: "tech"}); err != nil {
		t.Fatalf("bob typing_stop error = %v", err)
	}
	waitFor(t, "typing set to clear", func() bool {
		return len(st.View().Typing) == 0
	})

	// alice speaks; her own message only appears via the server echo
	if err := st.SendMessage("hi bob"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	waitFor(t, "alice's echoed message", func() bool {
		view := st.View()
		return len(view.Messages) == 4 && view.Messages[3].Sender.Username == "alice"
	})
}

// A dropped connection is recovered by redialing and rejoining; the fresh
// snapshot is authoritative.
func TestReconnectResync(t *testing.T) {
	broker := testutil.NewBroker(t)
	broker.Seed("tech", testutil.NewMessage("tech", "carol", "first"))
	token := testutil.MintToken(t, "alice", time.Hour)
	logger := log.New(io.Discard, "", 0)

	st := NewState(logger)

	ch, err := realtime.Dial(context.Background(), broker.URL(), token, logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	st.Bind(ch)
	if err := st.ChangeRoom("tech"); err != nil {
		t.Fatalf("ChangeRoom() error = %v", err)
	}
	waitFor(t, "initial snapshot", func() bool {
		return st.CurrentPhase() == Active
	})

	// connection drops
	ch.Close()
	<-ch.Done()
	st.SetEmitter(nil)
	if st.CurrentPhase() != Disconnected {
		t.Fatalf("phase = %v, want disconnected", st.CurrentPhase())
	}

	// more traffic happened while we were away
	broker.Seed("tech", testutil.NewMessage("tech", "carol", "missed this"))

	ch2, err := realtime.Dial(context.Background(), broker.URL(), token, logger)
	if err != nil {
		t.Fatalf("redial error = %v", err)
	}
	defer ch2.Close()
	st.Bind(ch2)
	st.Rejoin()

	waitFor(t, "resynced snapshot", func() bool {
		view := st.View()
		return view.Phase == Active && len(view.Messages) == 2
	})
	if got := st.View().Messages[1].Content; got != "missed this" {
		t.Errorf("resynced log tail = %q, want the missed message", got)
	}
}
