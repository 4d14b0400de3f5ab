package client

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Credentials supplies the bearer token for a request. An empty token with a
// nil error means the request is sent unauthenticated.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops any cached token after the API rejected it.
	Invalidate()
}

// Session binds a user to the credentials used on their behalf. It is passed
// explicitly to every call.
type Session struct {
	UserID      string
	Credentials Credentials
}

// Anonymous carries no token.
type Anonymous struct{}

func (Anonymous) Token(context.Context) (string, error) { return "", nil }
func (Anonymous) Invalidate()                            {}

// TokenStore holds a bearer token in memory and, when Path is set, mirrors it
// to a file so later runs reuse it. Invalidate removes both copies.
type TokenStore struct {
	Path string

	mu     sync.Mutex
	token  string
	loaded bool
}

// NewTokenStore creates a store seeded with token, persisted at path when non-empty.
func NewTokenStore(token, path string) *TokenStore {
	ts := &TokenStore{Path: path, token: token, loaded: token != ""}
	if token != "" && path != "" {
		_ = ts.persist(token)
	}
	return ts
}

// Token returns the current token, loading it from disk on first use.
func (s *TokenStore) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loaded = true
		if s.Path != "" {
			data, err := os.ReadFile(s.Path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", err
			}
			s.token = strings.TrimSpace(string(data))
		}
	}
	return s.token, nil
}

// Set replaces the token.
func (s *TokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.loaded = true
	if s.Path == "" {
		return nil
	}
	return s.persist(token)
}

// Invalidate forgets the token and deletes the persisted copy.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.loaded = true
	if s.Path != "" {
		_ = os.Remove(s.Path)
	}
}

func (s *TokenStore) persist(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(token), 0o600)
}

// SignDevToken issues an HS256 token for userID, accepted by a task API
// running in shared-secret mode. It is meant for local development only.
func SignDevToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("dev token secret is empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
