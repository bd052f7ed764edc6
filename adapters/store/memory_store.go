package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
)

// MemoryStore is an in-memory implementation of the SessionStore interface
type MemoryStore struct {
	sessions  map[string]*core.Session
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	mu        sync.Mutex
}

// NewMemoryStore creates a new in-memory store whose sessions live for ttl
func NewMemoryStore(ttl time.Duration) ports.SessionStore {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*core.Session),
		ttl:       ttl,
		now:       now,
		lastSweep: now(),
	}
}

// Create starts a new session
func (s *MemoryStore) Create(ctx context.Context) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(), nil
}

// Get returns a copy of the session
func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *session
	return &cp, nil
}

// SetChallenge overwrites the pending challenge
func (s *MemoryStore) SetChallenge(ctx context.Context, id, challenge, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(id)
	if err != nil {
		return err
	}
	session.Challenge = challenge
	session.PendingDomain = domain
	return nil
}

// TakeChallenge returns and clears the pending challenge
func (s *MemoryStore) TakeChallenge(ctx context.Context, id string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(id)
	if err != nil {
		return "", "", err
	}
	challenge, domain := session.Challenge, session.PendingDomain
	session.Challenge = ""
	session.PendingDomain = ""
	return challenge, domain, nil
}

// Rotate replaces the session with a fresh one under a new id
func (s *MemoryStore) Rotate(ctx context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupLocked(id); err != nil {
		return nil, err
	}
	delete(s.sessions, id)

	return s.insertLocked(), nil
}

// SetDomain marks the session authenticated
func (s *MemoryStore) SetDomain(ctx context.Context, id, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(id)
	if err != nil {
		return err
	}
	session.Domain = domain
	return nil
}

// Destroy removes the session
func (s *MemoryStore) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Clear removes all sessions
// This is useful for testing to reset the store between tests
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*core.Session)
}

func (s *MemoryStore) insertLocked() *core.Session {
	now := s.now()
	s.sweepLocked(now)

	session := &core.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[session.ID] = session

	cp := *session
	return &cp
}

// sweepLocked drops expired sessions, at most once per ttl. Sessions are only
// added on insert, so sweeping there bounds the map to what one ttl can create.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now

	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
		}
	}
}

// lookupLocked finds a live session, dropping it if it has expired
func (s *MemoryStore) lookupLocked(id string) (*core.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.sessions, id)
		return nil, core.ErrSessionNotFound
	}
	return session, nil
}
