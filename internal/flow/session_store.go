package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

// SessionStore holds each user's conversation state.
// Get returns a copy; changes only take effect through Put.
type SessionStore interface {
	Get(userID string) models.Session
	Put(s models.Session)
	Reset(userID string)
}

// InMemorySessionStore keeps sessions for the lifetime of the process.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	now      func() time.Time
}

// NewInMemorySessionStore creates an empty session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]models.Session),
		now:      time.Now,
	}
}

// Get returns the user's session, creating an idle one on first contact.
func (s *InMemorySessionStore) Get(userID string) models.Session {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess.Clone()
	}
	sess = models.NewSession(userID)
	sess.UpdatedAt = s.now()
	s.sessions[userID] = sess
	slog.Debug("SessionStore created session", "user", userID)
	return sess.Clone()
}

// Put replaces the stored session.
func (s *InMemorySessionStore) Put(sess models.Session) {
	c := sess.Clone()
	c.UpdatedAt = s.now()
	s.mu.Lock()
	s.sessions[sess.UserID] = c
	s.mu.Unlock()
}

// Reset returns the user's session to Idle with no answers.
func (s *InMemorySessionStore) Reset(userID string) {
	sess := models.NewSession(userID)
	sess.UpdatedAt = s.now()
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()
}

// Len reports how many users have a session.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// keyedMutex serializes work per key without a global lock across keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
