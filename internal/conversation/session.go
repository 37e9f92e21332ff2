package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when no session exists for a phone number.
var ErrSessionNotFound = errors.New("conversation: session not found")

// Session is the per-phone conversation snapshot. Values returned by a
// SessionStore are copies; callers persist changes with Save.
type Session struct {
	ID             uuid.UUID `json:"id"`
	PhoneNumber    string    `json:"phone_number"`
	State          State     `json:"current_state"`
	NavigationPath string    `json:"navigation_path"`
	Preferences    string    `json:"user_preferences,omitempty"`
	Active         bool      `json:"session_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSession returns a fresh WELCOME session for phone.
func NewSession(phone string, now time.Time) Session {
	return Session{
		ID:             uuid.New(),
		PhoneNumber:    phone,
		State:          InitialState,
		NavigationPath: string(InitialState),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SessionStore persists sessions keyed by phone number. At most one record
// exists per phone; GetOrCreate reactivates an ended record instead of adding
// a second one.
type SessionStore interface {
	GetActive(ctx context.Context, phone string) (Session, error)
	GetOrCreate(ctx context.Context, phone string) (Session, error)
	Save(ctx context.Context, session Session) (Session, error)
	FindByPhoneNumber(ctx context.Context, phone string) (Session, error)
	DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListActive(ctx context.Context) ([]Session, error)
	CountActive(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}
