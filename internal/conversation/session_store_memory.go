package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in process memory. Used for local runs and
// tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySessionStore) GetActive(_ context.Context, phone string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok || !sess.Active {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemorySessionStore) GetOrCreate(_ context.Context, phone string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[phone]
	switch {
	case !ok:
		sess = NewSession(phone, now)
	case !sess.Active:
		prefs := sess.Preferences
		id := sess.ID
		sess = NewSession(phone, now)
		sess.ID = id
		sess.Preferences = prefs
	default:
		sess.UpdatedAt = now
	}
	s.sessions[phone] = sess
	return sess, nil
}

func (s *MemorySessionStore) Save(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.PhoneNumber]; ok {
		session.ID = existing.ID
		session.CreatedAt = existing.CreatedAt
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = s.now()
	}
	s.sessions[session.PhoneNumber] = session
	return session, nil
}

func (s *MemorySessionStore) FindByPhoneNumber(_ context.Context, phone string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemorySessionStore) DeactivateOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for phone, sess := range s.sessions {
		if sess.Active && sess.UpdatedAt.Before(cutoff) {
			sess.Active = false
			sess.UpdatedAt = now
			s.sessions[phone] = sess
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) ListActive(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Active {
			out = append(out, sess)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return strings.Compare(out[i].PhoneNumber, out[j].PhoneNumber) < 0
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemorySessionStore) CountActive(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.Active {
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sessions)), nil
}
