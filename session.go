package releasea

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session holds the in-memory authentication state: bearer token, user
// snapshot and CSRF token. Nothing here is ever persisted. The user snapshot
// and CSRF token are dropped together with the token, never separately.
type Session struct {
	mu    sync.RWMutex
	token string
	user  *User
	csrf  string
	// generation increases on every Clear so late CSRF fetches that started
	// before the clear cannot repopulate the cache.
	generation uint64
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Token returns the bearer token, or "" when none is held.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the user snapshot, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

// CSRFToken returns the cached CSRF token, or "".
func (s *Session) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrf
}

// SetToken stores a bearer token. An empty token clears the whole session.
// A changed token invalidates the user snapshot, which belongs to the old one.
func (s *Session) SetToken(token string) {
	if token == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		s.user = nil
	}
	s.token = token
}

// Establish stores a token together with the user it belongs to.
func (s *Session) Establish(token string, user *User) {
	if token == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = copyUser(user)
}

// rotateToken swaps in a refreshed token. The user snapshot survives unless
// the refresh returned a new one.
func (s *Session) rotateToken(token string, user *User) {
	if token == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if user != nil {
		s.user = copyUser(user)
	}
}

// SetUser replaces the user snapshot. It is ignored while no token is held.
func (s *Session) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return
	}
	s.user = copyUser(user)
}

// Clear wipes token, user and CSRF token in one step.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.csrf = ""
	s.generation++
}

// Authenticated reports whether a bearer token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// ExpiresAt reads the exp claim of the bearer token without verifying its
// signature. ok is false when no token is held or it carries no expiry.
func (s *Session) ExpiresAt() (exp time.Time, ok bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Session) csrfGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// storeCSRF caches token unless the session was cleared since gen was read.
func (s *Session) storeCSRF(token string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.csrf = token
	return true
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Teams != nil {
		cp.Teams = append([]string(nil), u.Teams...)
	}
	return &cp
}
