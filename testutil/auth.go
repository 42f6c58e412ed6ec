// Package testutil provides in-process stand-ins for the auth collaborator
// and the realtime broker so client behavior can be tested end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningKey signs the tokens minted by the fixtures. Tests only.
const SigningKey = "roomchat-testutil-signing-key"

// MintToken issues an HS256 token carrying a username and expiry, shaped
// like the tokens the real auth service hands out.
func MintToken(t *testing.T, username string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(SigningKey))
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return token
}

// UsernameFromToken validates a fixture token and extracts its username.
func UsernameFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(SigningKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", fmt.Errorf("token has no username claim")
	}
	return username, nil
}

// BearerToken pulls the token out of an Authorization header.
func BearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type account struct {
	Username string
	Password string
}

// AuthServer mimics the login/register/logout REST contract.
type AuthServer struct {
	Server *httptest.Server

	mu          sync.Mutex
	accounts    map[string]account // keyed by email
	FailLogout  bool
	LogoutCalls int
}

func NewAuthServer(t *testing.T) *AuthServer {
	t.Helper()
	a := &AuthServer{accounts: make(map[string]account)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// AddAccount seeds a known credential pair.
func (a *AuthServer) AddAccount(username, email, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[email] = account{Username: username, Password: password}
}

func (a *AuthServer) URL() string {
	return a.Server.URL
}

func (a *AuthServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}
	a.mu.Lock()
	acct, ok := a.accounts[req.Email]
	a.mu.Unlock()
	if !ok || acct.Password != req.Password {
		writeFailure(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeSession(w, acct.Username, req.Email)
}

func (a *AuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.accounts[req.Email]; exists {
		writeFailure(w, http.StatusConflict, "Email already registered")
		return
	}
	a.accounts[req.Email] = account{Username: req.Username, Password: req.Password}
	writeSession(w, req.Username, req.Email)
}

func (a *AuthServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.LogoutCalls++
	fail := a.FailLogout
	a.mu.Unlock()
	if fail {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func writeSession(w http.ResponseWriter, username, email string) {
	claims := jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(SigningKey))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"token":   token,
		"user": map[string]string{
			"id":       uuid.NewString(),
			"username": username,
			"email":    email,
		},
	})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
