// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTimeout is the server session lifetime when none is set.
const DefaultSessionTimeout = 30 * time.Minute

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned for sessions past their expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidUser is returned when login has no usable user name.
	ErrInvalidUser = errors.New("invalid user name")
)

// MaxUserLength bounds user names accepted at login.
const MaxUserLength = 64

// =============================================================================
// SESSION RECORD
// =============================================================================

// Record is one server-side session. Each successful request moves
// ExpiresAt to LastActivity + Timeout.
type Record struct {
	ID           string
	User         string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	// Timeout is fixed when the session is created.
	Timeout time.Duration
}

// Remaining returns the time left at now.
func (r Record) Remaining(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsExpired reports whether the session has expired at now.
func (r Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// =============================================================================
// STORE
// =============================================================================

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow replaces the time source.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store keeps sessions in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	timeout  time.Duration

	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a store whose new sessions last timeout.
func NewStore(timeout time.Duration, opts ...StoreOption) *Store {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	s := &Store{
		sessions: make(map[string]*Record),
		timeout:  timeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// Timeout returns the lifetime given to new sessions.
func (s *Store) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeout
}

// SetTimeout changes the lifetime of sessions created afterwards.
func (s *Store) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.mu.Lock()
	old := s.timeout
	s.timeout = timeout
	s.mu.Unlock()

	if old != timeout {
		s.logger.Info("SESSION_TIMEOUT_CHANGED", "old", old, "new", timeout)
	}
}

// Create starts a session for user.
func (s *Store) Create(user string) (Record, error) {
	user = strings.TrimSpace(user)
	if user == "" || len(user) > MaxUserLength || strings.ContainsAny(user, "\r\n\t") {
		return Record{}, ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &Record{
		ID:           uuid.NewString(),
		User:         user,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.timeout),
		Timeout:      s.timeout,
	}
	s.sessions[rec.ID] = rec

	s.logger.Info("SESSION_CREATED", "session_id", rec.ID, "user", user, "timeout", rec.Timeout)
	return *rec, nil
}

// Get returns a session without extending it.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	if rec.IsExpired(s.now()) {
		return *rec, ErrSessionExpired
	}
	return *rec, nil
}

// Touch records activity and extends the session. Expired sessions are
// removed and reported as ErrSessionExpired.
func (s *Store) Touch(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	now := s.now()
	if rec.IsExpired(now) {
		delete(s.sessions, id)
		s.logger.Info("SESSION_EXPIRED", "session_id", id, "user", rec.User)
		return *rec, ErrSessionExpired
	}
	rec.LastActivity = now
	rec.ExpiresAt = now.Add(rec.Timeout)
	return *rec, nil
}

// Delete ends a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Info("SESSION_ENDED", "session_id", id, "user", rec.User)
	return true
}

// Len returns the number of stored sessions, expired ones included until
// the next purge.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Purge removes expired sessions and returns how many were removed.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.sessions {
		if rec.IsExpired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("SESSIONS_PURGED", "removed", removed, "remaining", len(s.sessions))
	}
	return removed
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}
