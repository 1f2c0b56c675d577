package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when creating a session whose id is taken.
	ErrExists = errors.New("session already exists")
)

// Patch carries the mutable, last-write-wins fields of a session. Nil fields are left alone.
type Patch struct {
	Preferences *Preferences
	WeatherData *WeatherData
}

// Store persists sessions keyed by session id. Messages and suggestions are append-only,
// and every mutation refreshes UpdatedAt. Implementations must be safe for concurrent use
// and must return copies that callers may freely modify.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, patch Patch) (*Session, error)
	AppendMessage(ctx context.Context, id string, msg Message) error
	AppendSuggestion(ctx context.Context, id string, sug Suggestion) error
	// ListByUser returns one page of the user's sessions, most recently updated first,
	// and the total number of sessions the user has.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error)
	// DeleteIdle removes sessions not updated since cutoff.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
	Close(ctx context.Context) error
}
