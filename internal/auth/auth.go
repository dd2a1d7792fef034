// Package auth holds password verification and the in-memory session
// registry backing the login endpoint.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Session is a logged-in account, addressed by its bearer token.
type Session struct {
	Token     string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// Sessions is the in-memory session registry. Tokens are random UUIDs and
// expire after a fixed TTL; a janitor sweeps expired entries.
type Sessions struct {
	log zerolog.Logger
	ttl time.Duration

	mu      sync.Mutex
	byToken map[string]Session
}

const defaultTTL = 12 * time.Hour

func NewSessions(log zerolog.Logger, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Sessions{
		log:     log,
		ttl:     ttl,
		byToken: make(map[string]Session),
	}
}

// Run sweeps expired sessions until ctx is done.
func (s *Sessions) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Sessions) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.byToken {
		if now.After(sess.ExpiresAt) {
			delete(s.byToken, token)
		}
	}
}

// Create mints a session for an authenticated account.
func (s *Sessions) Create(username, role string) Session {
	sess := Session{
		Token:     uuid.NewString(),
		Username:  username,
		Role:      role,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.byToken[sess.Token] = sess
	s.mu.Unlock()
	s.log.Debug().Str("username", username).Msg("session created")
	return sess
}

// Lookup resolves a token. Expired sessions are dropped on access.
func (s *Sessions) Lookup(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return Session{}, false
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.byToken, token)
		return Session{}, false
	}
	return sess, true
}

// Revoke removes a session. Returns whether it existed.
func (s *Sessions) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byToken[token]
	delete(s.byToken, token)
	return ok
}

// Count reports live sessions, expired ones included until swept.
func (s *Sessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword checks a candidate password against a stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
