package handlers

import (
	"context"

	"github.com/manorfm/mcpauth/internal/application"
	"github.com/manorfm/mcpauth/internal/domain"
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (*application.LoginResult, error)
}

type ClientService interface {
	Register(ctx context.Context, req application.RegisterClientRequest) (*domain.RegisteredClient, error)
}

type OAuth2Service interface {
	Metadata() *application.Metadata
	Authorize(ctx context.Context, req application.AuthorizeRequest) (*application.AuthorizeResult, error)
	Token(ctx context.Context, req application.TokenRequest) (*application.TokenResponse, error)
	Introspect(ctx context.Context, token string) (*application.IntrospectionResult, error)
	Revoke(ctx context.Context, token string) error
}

type ToolDispatcher interface {
	Call(ctx context.Context, name string, args map[string]any, bearer string) (any, error)
}
