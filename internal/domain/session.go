package domain

import (
	"sync"
	"time"
)

// SessionState is the authentication state of one connection.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
)

func (s SessionState) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Session tracks a connection's identity. Once authenticated it never goes
// back to unauthenticated and never changes identity.
type Session struct {
	ID           string
	userID       string
	state        SessionState
	CreatedAt    time.Time
	lastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Authenticate moves the session to Authenticated(userID). It reports false
// without changing anything when the session already belongs to another user.
// Authenticating again as the same user is a no-op that reports true.
func (s *Session) Authenticate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated {
		return s.userID == userID
	}
	s.userID = userID
	s.state = StateAuthenticated
	s.lastActiveAt = time.Now()
	return true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// UserID returns the authenticated identity, or "" before auth.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
