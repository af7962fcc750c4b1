package domain

import "context"

// User is a resource owner known to the CredentialStore. Each user is bound
// to one client id and one space-separated scope string.
type User struct {
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"-"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	Scope        string `json:"scope" yaml:"scope"`
}

// CredentialStore resolves and authenticates users.
type CredentialStore interface {
	// FindByUsername returns ErrUserNotFound when the user does not exist
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByClientID returns the user bound to a client id, or ErrUserNotFound
	FindByClientID(ctx context.Context, clientID string) (*User, error)

	// Authenticate returns ErrInvalidCredentials for an unknown user or a wrong password
	Authenticate(ctx context.Context, username, password string) (*User, error)
}
