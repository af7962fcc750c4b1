package application

import (
	"context"
	"testing"
	"time"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/credentials"
	"github.com/manorfm/mcpauth/internal/infrastructure/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRedirectURI = "http://localhost:8080/callback"
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge   = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

// fixture wires the services over memory stores with a controllable clock
type fixture struct {
	cfg     *config.Config
	repos   *repository.Repositories
	now     time.Time
	auth    *AuthService
	clients *ClientService
	oauth   *OAuth2Service
}

func newFixture(t *testing.T, configure ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.NewConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	logger := zap.NewNop()
	store, err := credentials.NewStore(map[string]credentials.UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client", Scope: "mcp:read mcp:write"},
		"user2": {Password: "hunter2", ClientID: "other_client", Scope: "mcp:read"},
	}, logger)
	require.NoError(t, err)

	f := &fixture{
		cfg:   cfg,
		repos: repository.NewMemoryRepositories(logger),
		now:   time.Now(),
	}
	clock := WithClock(func() time.Time { return f.now })

	f.auth = NewAuthService(store, f.repos.Sessions, f.repos.Tokens, cfg, logger, clock)
	f.clients = NewClientService(f.repos.Clients, logger, clock)
	f.oauth = NewOAuth2Service(f.repos.Clients, f.repos.Sessions, f.repos.Codes, f.repos.Tokens, store, cfg, logger, clock)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) register(t *testing.T, grantTypes ...string) *domain.RegisteredClient {
	t.Helper()
	client, err := f.clients.Register(context.Background(), RegisterClientRequest{
		ClientName:   "Test Client",
		RedirectURIs: []string{testRedirectURI},
		GrantTypes:   grantTypes,
	})
	require.NoError(t, err)
	return client
}

func (f *fixture) login(t *testing.T, username, password string) *LoginResult {
	t.Helper()
	result, err := f.auth.Login(context.Background(), username, password)
	require.NoError(t, err)
	return result
}

func (f *fixture) authorize(t *testing.T, clientID string) *AuthorizeResult {
	t.Helper()
	login := f.login(t, "user1", "password123")
	result, err := f.oauth.Authorize(context.Background(), AuthorizeRequest{
		ResponseType:        domain.ResponseTypeCode,
		ClientID:            clientID,
		RedirectURI:         testRedirectURI,
		State:               "xyz",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: domain.CodeChallengeMethodS256,
		Username:            "user1",
		SessionID:           login.SessionID,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) exchange(clientID, code string) (*TokenResponse, error) {
	return f.oauth.Token(context.Background(), TokenRequest{
		GrantType:    domain.GrantTypeAuthorizationCode,
		Code:         code,
		ClientID:     clientID,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
}

func (f *fixture) introspect(t *testing.T, token string) *IntrospectionResult {
	t.Helper()
	result, err := f.oauth.Introspect(context.Background(), token)
	require.NoError(t, err)
	return result
}

// MockTokenRepository is a mock implementation of domain.TokenRepository
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) Find(ctx context.Context, value string) (*domain.Token, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenRepository) Delete(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockTokenRepository) Rotate(ctx context.Context, refreshValue string, next *domain.Token, validate func(*domain.Token) error) error {
	args := m.Called(ctx, refreshValue, next, validate)
	return args.Error(0)
}

// MockSessionRepository is a mock implementation of domain.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.AuthenticatedSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.AuthenticatedSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthenticatedSession), args.Error(1)
}

func (m *MockSessionRepository) ListByUsername(ctx context.Context, username string) ([]*domain.AuthenticatedSession, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuthenticatedSession), args.Error(1)
}
