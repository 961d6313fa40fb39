package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"incidentrag/internal/domain"
)

type session struct {
	turns    []domain.ConversationTurn
	lastUsed time.Time
}

// InMemoryStore keeps at most maxTurns turns per session, evicting the
// oldest first. Sessions idle for longer than ttl are dropped; a zero ttl
// keeps them for the life of the process.
type InMemoryStore struct {
	maxTurns int
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

func NewInMemoryStore(maxTurns int, ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Append adds turns to the session as one unit: no other append to the
// same session lands between them.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, turns ...domain.ConversationTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	sess := s.liveLocked(sessionID, now)
	if sess == nil {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, turns...)
	sess.lastUsed = now
	if s.maxTurns > 0 && len(sess.turns) > s.maxTurns {
		drop := len(sess.turns) - s.maxTurns
		sess.turns = append([]domain.ConversationTurn(nil), sess.turns[drop:]...)
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, sessionID string, w Window) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.liveLocked(sessionID, s.now())
	if sess == nil {
		return nil, nil
	}
	return applyWindow(sess.turns, w), nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of sessions currently held.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *InMemoryStore) liveLocked(id string, now time.Time) *session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil
	}
	return sess
}

func (s *InMemoryStore) expired(sess *session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastUsed) > s.ttl
}

// sweepLocked drops idle sessions at most once per ttl.
func (s *InMemoryStore) sweepLocked(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
		}
	}
}
