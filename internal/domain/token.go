package domain

import (
	"context"
	"time"
)

// TokenKind distinguishes access tokens from refresh tokens in the TokenStore
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access_token"
	TokenKindRefresh TokenKind = "refresh_token"

	TokenTypeBearer = "bearer"
)

// Owner identifies the user a token acts for. Tokens minted through the
// client_credentials grant have no owner.
type Owner struct {
	Username string `json:"username"`
}

// Token is an opaque bearer value plus its metadata. Refresh tokens link to
// the access token they last produced and access tokens link back.
type Token struct {
	Value     string        `json:"value"`
	Kind      TokenKind     `json:"kind"`
	Owner     *Owner        `json:"owner,omitempty"`
	ClientID  string        `json:"client_id"`
	Scope     string        `json:"scope"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresIn time.Duration `json:"expires_in"`
	Active    bool          `json:"active"`
	Linked    string        `json:"linked,omitempty"`
}

func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.ExpiresIn)
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt())
}

// Username returns the owner's username, or "" for service tokens
func (t *Token) Username() string {
	if t.Owner == nil {
		return ""
	}
	return t.Owner.Username
}

// TokenRepository is the TokenStore
type TokenRepository interface {
	Create(ctx context.Context, token *Token) error

	// Find returns ErrTokenNotFound for unknown values
	Find(ctx context.Context, value string) (*Token, error)

	// Delete removes a token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, value string) error

	// Rotate atomically exchanges a refresh token for next. validate runs
	// against the stored refresh token first; if it fails nothing changes.
	// Otherwise the access token previously linked to the refresh token is
	// marked inactive (but kept), next is stored, and the two are re-linked.
	Rotate(ctx context.Context, refreshValue string, next *Token, validate func(*Token) error) error
}
