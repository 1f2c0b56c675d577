package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is the default backend and the one
// used in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.SessionID]; exists {
		return ErrExists
	}

	stored := sess.Clone()
	now := s.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.sessions[sess.SessionID] = stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Preferences != nil {
		sess.Preferences = patch.Preferences.clone()
	}
	if patch.WeatherData != nil {
		w := *patch.WeatherData
		sess.WeatherData = &w
	}
	sess.UpdatedAt = s.now().UTC()
	return sess.Clone(), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) AppendSuggestion(ctx context.Context, id string, sug Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.AISuggestions = append(sess.AISuggestions, sug)
	sess.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			owned = append(owned, sess)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})

	total := len(owned)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]Summary, 0, end-offset)
	for _, sess := range owned[offset:end] {
		result = append(result, sess.Summarize())
	}
	return result, total, nil
}

func (s *MemoryStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
