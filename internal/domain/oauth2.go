package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"

	ResponseTypeCode = "code"

	CodeChallengeMethodS256 = "S256"

	AuthMethodClientSecretPost = "client_secret_post"
	AuthMethodNone             = "none"

	DefaultScope = "mcp:read mcp:write"
)

// RegisteredClient is an OAuth client created through dynamic registration
type RegisteredClient struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	ClientName              string    `json:"client_name"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	Scope                   string    `json:"scope"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	IssuedAt                time.Time `json:"issued_at"`
}

func (c *RegisteredClient) HasGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

func (c *RegisteredClient) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// IsPublic reports whether the client authenticates with PKCE alone
func (c *RegisteredClient) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// ClientRepository is the ClientRegistry
type ClientRepository interface {
	// Create stores a new client. Returns ErrClientExists if the id is taken.
	Create(ctx context.Context, client *RegisteredClient) error

	// FindByID returns ErrClientNotFound for unknown ids
	FindByID(ctx context.Context, clientID string) (*RegisteredClient, error)
}

// AuthorizationCode is a single-use grant bound to a client, redirect URI and
// PKCE challenge
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	Username            string    `json:"username"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`
	Used                bool      `json:"used"`
}

// IsExpired reports whether the code is older than ttl at now
func (c *AuthorizationCode) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}

// AuthorizationCodeRepository is the AuthorizationCodeStore.
type AuthorizationCodeRepository interface {
	Create(ctx context.Context, code *AuthorizationCode) error

	// Consume atomically looks the code up, rejects it if already used, runs
	// validate and, only when validate succeeds, marks the code used. Unknown
	// and used codes yield ErrInvalidGrant. At most one concurrent caller can
	// succeed for a given code.
	Consume(ctx context.Context, code string, validate func(*AuthorizationCode) error) (*AuthorizationCode, error)
}

// SplitScope turns a space-separated scope string into its parts
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}
