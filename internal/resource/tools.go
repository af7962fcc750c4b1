package resource

import (
	"context"
	"slices"

	"github.com/manorfm/mcpauth/internal/domain"
)

const (
	ScopeRead  = "mcp:read"
	ScopeWrite = "mcp:write"
)

// DefaultTools returns the demo tools. Every tool requires the server-wide
// scopes on top of its own.
func DefaultTools(required []string) []Tool {
	return []Tool{
		{
			Name:           "protected_tool_1",
			Description:    "Protected tool 1, requires a valid token",
			RequiredScopes: withScopes(required, ScopeRead),
			Handler: func(context.Context, *domain.AccessToken, map[string]any) (any, error) {
				return "This is protected data 1", nil
			},
		},
		{
			Name:           "protected_tool_2",
			Description:    "Protected tool 2, requires a valid token with write access",
			RequiredScopes: withScopes(required, ScopeWrite),
			Handler: func(context.Context, *domain.AccessToken, map[string]any) (any, error) {
				return "This is protected data 2", nil
			},
		},
		{
			Name:           "whoami",
			Description:    "Describes the caller's token",
			RequiredScopes: withScopes(required),
			Handler: func(_ context.Context, token *domain.AccessToken, _ map[string]any) (any, error) {
				return map[string]any{
					"client_id": token.ClientID,
					"username":  token.Username,
					"scopes":    token.Scopes,
				}, nil
			},
		},
	}
}

// RegisterDefaultTools adds DefaultTools to the dispatcher
func RegisterDefaultTools(d *Dispatcher, required []string) error {
	for _, tool := range DefaultTools(required) {
		if err := d.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func withScopes(base []string, extra ...string) []string {
	scopes := slices.Clone(base)
	for _, scope := range extra {
		if !slices.Contains(scopes, scope) {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
