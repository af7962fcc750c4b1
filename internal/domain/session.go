package domain

import (
	"context"
	"time"
)

// AuthenticatedSession records that a user logged in. The authorize endpoint
// only issues codes to users holding an unexpired session.
type AuthenticatedSession struct {
	SessionID       string    `json:"session_id"`
	Username        string    `json:"username"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (s *AuthenticatedSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepository is the SessionStore
type SessionRepository interface {
	Create(ctx context.Context, session *AuthenticatedSession) error

	// FindByID returns ErrSessionNotFound for unknown ids
	FindByID(ctx context.Context, sessionID string) (*AuthenticatedSession, error)

	// ListByUsername returns every stored session of the user, expired ones included
	ListByUsername(ctx context.Context, username string) ([]*AuthenticatedSession, error)
}
