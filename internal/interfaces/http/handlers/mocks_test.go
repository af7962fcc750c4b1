package handlers

import (
	"context"

	"github.com/manorfm/mcpauth/internal/application"
	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/stretchr/testify/mock"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*application.LoginResult, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.LoginResult), args.Error(1)
}

type mockClientService struct {
	mock.Mock
}

func (m *mockClientService) Register(ctx context.Context, req application.RegisterClientRequest) (*domain.RegisteredClient, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegisteredClient), args.Error(1)
}

type mockOAuth2Service struct {
	mock.Mock
}

func (m *mockOAuth2Service) Metadata() *application.Metadata {
	args := m.Called()
	return args.Get(0).(*application.Metadata)
}

func (m *mockOAuth2Service) Authorize(ctx context.Context, req application.AuthorizeRequest) (*application.AuthorizeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.AuthorizeResult), args.Error(1)
}

func (m *mockOAuth2Service) Token(ctx context.Context, req application.TokenRequest) (*application.TokenResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.TokenResponse), args.Error(1)
}

func (m *mockOAuth2Service) Introspect(ctx context.Context, token string) (*application.IntrospectionResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.IntrospectionResult), args.Error(1)
}

func (m *mockOAuth2Service) Revoke(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Call(ctx context.Context, name string, args map[string]any, bearer string) (any, error) {
	ret := m.Called(ctx, name, args, bearer)
	return ret.Get(0), ret.Error(1)
}
