package session

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/testutil"
)

func newTestStore(t *testing.T, baseURL string) (*Store, *viper.Viper) {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "config.yaml"))
	return NewStore(v, baseURL, log.New(io.Discard, "", 0)), v
}

func TestLoginSuccessPersists(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")
	store, v := newTestStore(t, auth.URL())

	sess, err := store.Login(context.Background(), "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.User.Username != "alice" {
		t.Errorf("username = %q, want alice", sess.User.Username)
	}
	if v.GetString("token") == "" {
		t.Error("token was not persisted")
	}

	// a second store restoring from the same config picks the session up
	restored := NewStore(v, auth.URL(), log.New(io.Discard, "", 0))
	restored.Restore()
	if got := restored.Current(); !got.IsValid() || got.User.Username != "alice" {
		t.Errorf("restored session = %+v, want alice", got)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")
	store, v := newTestStore(t, auth.URL())

	_, err := store.Login(context.Background(), "alice@example.com", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error = %v, want *AuthError", err)
	}
	if authErr.Message != "Invalid credentials" {
		t.Errorf("message = %q", authErr.Message)
	}
	if store.Current().IsValid() {
		t.Error("failed login must not set a session")
	}
	if v.GetString("token") != "" {
		t.Error("failed login must not persist a token")
	}
}

func TestLoginValidatesLocally(t *testing.T) {
	store, _ := newTestStore(t, "http://127.0.0.1:0") // unreachable on purpose
	_, err := store.Login(context.Background(), "", "secret123")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error = %v, want local *AuthError before any network call", err)
	}
}

func TestRegister(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")

	tests := []struct {
		name     string
		username string
		email    string
		password string
		wantMsg  string
	}{
		{name: "success", username: "bob", email: "bob@example.com", password: "secret123"},
		{name: "short password", username: "bob", email: "bob2@example.com", password: "abc",
			wantMsg: "Password must be at least 6 characters long"},
		{name: "missing fields", username: "", email: "bob3@example.com", password: "secret123",
			wantMsg: "Please fill in all fields"},
		{name: "duplicate email", username: "eve", email: "alice@example.com", password: "secret123",
			wantMsg: "Email already registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, auth.URL())
			sess, err := store.Register(context.Background(), tt.username, tt.email, tt.password)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				if sess.User.Username != tt.username {
					t.Errorf("username = %q, want %q", sess.User.Username, tt.username)
				}
				return
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Register() error = %v, want *AuthError", err)
			}
			if authErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", authErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestRestoreDiscardsCorruptedProfile(t *testing.T) {
	store, v := newTestStore(t, "http://127.0.0.1:0")
	v.Set("token", "sometoken")
	v.Set("user", `{"id": "1", "username": `) // truncated JSON

	store.Restore()

	if store.Current().IsValid() {
		t.Error("corrupted profile must leave the session empty")
	}
	if v.GetString("token") != "" || v.GetString("user") != "" {
		t.Error("corrupted entries must be cleared from storage")
	}
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")
	store, v := newTestStore(t, auth.URL())

	if _, err := store.Login(context.Background(), "alice@example.com", "secret123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	auth.FailLogout = true

	store.Logout(context.Background())

	if auth.LogoutCalls != 1 {
		t.Errorf("logout calls = %d, want 1", auth.LogoutCalls)
	}
	if store.Current().IsValid() {
		t.Error("session must be cleared even when the server call fails")
	}
	if v.GetString("token") != "" {
		t.Error("durable token must be cleared")
	}
}

func TestExpiresAt(t *testing.T) {
	auth := testutil.NewAuthServer(t)
	auth.AddAccount("alice", "alice@example.com", "secret123")
	store, _ := newTestStore(t, auth.URL())

	if _, ok := store.ExpiresAt(); ok {
		t.Error("ExpiresAt() on empty session should report false")
	}
	if _, err := store.Login(context.Background(), "alice@example.com", "secret123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	exp, ok := store.ExpiresAt()
	if !ok {
		t.Fatal("ExpiresAt() = false after login")
	}
	if until := time.Until(exp); until < 50*time.Minute || until > 70*time.Minute {
		t.Errorf("expiry %v from now, want about an hour", until)
	}
}
