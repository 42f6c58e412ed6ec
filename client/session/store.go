// Package session holds the authenticated identity and credential token,
// persisting them across runs through the shared config file.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/client/domain"
)

const (
	tokenKey = "token"
	userKey  = "user"

	minPasswordLength = 6
	requestTimeout    = 10 * time.Second
)

// AuthError is a credential failure with a message fit for the user.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

type authResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	Message string      `json:"message"`
}

// Store owns the active session. All network calls carry the token
// explicitly; nothing mutates a process-wide default.
type Store struct {
	mu      sync.Mutex
	v       *viper.Viper
	client  *http.Client
	baseURL string
	logger  *log.Logger
	current domain.Session
}

func NewStore(v *viper.Viper, baseURL string, logger *log.Logger) *Store {
	return &Store{
		v:       v,
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Restore loads a previously saved session. A malformed saved profile is
// discarded along with the token; Restore never fails the caller.
func (s *Store) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.v.GetString(tokenKey)
	rawUser := s.v.GetString(userKey)
	if token == "" || rawUser == "" {
		return
	}
	var user domain.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Printf("discarding corrupted saved session: %v", err)
		s.clearLocked()
		return
	}
	s.current = domain.NewSession(token, user)
}

// Current returns the active session, zero if none.
func (s *Store) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Token returns the active credential token, empty if logged out.
func (s *Store) Token() string {
	return s.Current().Token
}

// ExpiresAt reports the expiry of the active token, decoded from its exp
// claim without signature verification (the client holds no key). The
// second result is false when there is no token or no exp claim.
func (s *Store) ExpiresAt() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Login authenticates against the auth collaborator. On failure the active
// session and durable storage are left untouched.
func (s *Store) Login(ctx context.Context, email, password string) (domain.Session, error) {
	if email == "" || password == "" {
		return domain.Session{}, &AuthError{Message: "Please fill in all fields"}
	}
	res, err := s.post(ctx, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s.adopt(res, "Login failed. Please try again.")
}

// Register creates an account and, like Login, adopts the returned session.
// Local validation rejects obviously bad input before any network call.
func (s *Store) Register(ctx context.Context, username, email, password string) (domain.Session, error) {
	if username == "" || email == "" || password == "" {
		return domain.Session{}, &AuthError{Message: "Please fill in all fields"}
	}
	if len(password) < minPasswordLength {
		return domain.Session{}, &AuthError{Message: "Password must be at least 6 characters long"}
	}
	res, err := s.post(ctx, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s.adopt(res, "Registration failed. Please try again.")
}

// Logout notifies the server best-effort, then unconditionally clears the
// active session and durable storage. Server failures are logged only.
func (s *Store) Logout(ctx context.Context) {
	token := s.Token()
	if token != "" {
		if _, err := s.post(ctx, "/api/auth/logout", token, struct{}{}); err != nil {
			s.logger.Printf("logout notification failed: %v", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) adopt(res authResponse, fallback string) (domain.Session, error) {
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = fallback
		}
		return domain.Session{}, &AuthError{Message: msg}
	}
	sess := domain.NewSession(res.Token, res.User)
	if !sess.IsValid() {
		return domain.Session{}, &AuthError{Message: fallback}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.persistLocked()
	return sess, nil
}

func (s *Store) post(ctx context.Context, path, token string, body any) (authResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return authResponse{}, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return authResponse{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return authResponse{}, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	var res authResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return authResponse{}, fmt.Errorf("calling %s: status %d", path, resp.StatusCode)
		}
		return authResponse{}, fmt.Errorf("decoding %s response: %w", path, err)
	}
	return res, nil
}

func (s *Store) persistLocked() {
	rawUser, err := json.Marshal(s.current.User)
	if err != nil {
		s.logger.Printf("persisting session: %v", err)
		return
	}
	s.v.Set(tokenKey, s.current.Token)
	s.v.Set(userKey, string(rawUser))
	s.write()
}

func (s *Store) clearLocked() {
	s.current = domain.Session{}
	s.v.Set(tokenKey, "")
	s.v.Set(userKey, "")
	s.write()
}

func (s *Store) write() {
	err := s.v.WriteConfig()
	if err == nil {
		return
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		err = s.v.SafeWriteConfig()
	}
	if err != nil {
		s.logger.Printf("writing session to config: %v", err)
	}
}
