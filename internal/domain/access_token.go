package domain

import (
	"context"
	"slices"
)

// AccessToken is what a resource server learns about a bearer token from
// introspection
type AccessToken struct {
	Token     string   `json:"-"`
	ClientID  string   `json:"client_id"`
	Username  string   `json:"username,omitempty"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
}

// HasScopes reports whether every required scope was granted
func (a *AccessToken) HasScopes(required ...string) bool {
	return len(a.MissingScopes(required...)) == 0
}

// MissingScopes returns the required scopes the token does not carry
func (a *AccessToken) MissingScopes(required ...string) []string {
	var missing []string
	for _, scope := range required {
		if !slices.Contains(a.Scopes, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// TokenVerifier resolves a bearer token into the access it grants. Any
// failure means no access.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*AccessToken, error)
}
