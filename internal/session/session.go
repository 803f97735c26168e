// Package session keeps the server-side table of authenticated users.
//
// A session is identified by an opaque random token handed to the
// browser in a cookie.  Expiry is sliding: every successful lookup
// pushes ExpiresAt forward by Timeout.  Expired entries are removed
// lazily by Get and in bulk by CleanupExpired; the optional janitor in
// Run only bounds memory and is never needed for correctness.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Timeout is the idle lifetime of a session.
const Timeout = 30 * time.Minute

// TokenBytes is the amount of randomness in a token (128 bits).
const TokenBytes = 16

// Session is a snapshot of one authenticated login.
type Session struct {
	Token        string
	Username     string
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    time.Time
}

// Expired reports whether s is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Store is a concurrency-safe session table.  The zero value is not
// usable; call NewStore.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		Now:      time.Now,
	}
}

// Create opens a session for username and returns a copy of it.
func (s *Store) Create(username string) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	sess := &Session{
		Token:        token,
		Username:     username,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(Timeout),
	}
	s.sessions[token] = sess
	return *sess, nil
}

// Get returns the live session for token and extends its expiry.  An
// expired session is deleted and reported absent.
func (s *Store) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	now := s.Now()
	if sess.Expired(now) {
		delete(s.sessions, token)
		return Session{}, false
	}
	sess.LastAccessed = now
	sess.ExpiresAt = now.Add(Timeout)
	return *sess, true
}

// Remove deletes token.  Unknown tokens are ignored.
func (s *Store) Remove(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CleanupExpired deletes every expired session and returns how many
// were removed.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	n := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run calls CleanupExpired every interval until ctx is done.  onSweep,
// if non-nil, receives the number removed by each sweep.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.CleanupExpired()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
