package application

import (
	"context"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/secret"
	"go.uber.org/zap"
)

// LoginResult is returned by a successful login: a bearer token for the
// user's own client plus the session that gates /auth/authorize
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	Scope       string
	SessionID   string
}

type AuthService struct {
	credentials domain.CredentialStore
	sessions    domain.SessionRepository
	tokens      domain.TokenRepository
	cfg         *config.Config
	opts        options
	logger      *zap.Logger
}

func NewAuthService(
	credentials domain.CredentialStore,
	sessions domain.SessionRepository,
	tokens domain.TokenRepository,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		sessions:    sessions,
		tokens:      tokens,
		cfg:         cfg,
		opts:        newOptions(opts),
		logger:      logger,
	}
}

// Login authenticates a user and opens an authenticated session
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	s.logger.Debug("Login attempt", zap.String("username", username))

	if username == "" || password == "" {
		return nil, domain.ErrMissingParameters.WithMessage("Username and password are required")
	}

	user, err := s.credentials.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Info("Login failed", zap.String("username", username))
		s.opts.metrics.OAuthError(domain.ErrInvalidCredentials.Code)
		return nil, domain.ErrInvalidCredentials
	}

	now := s.opts.clock()
	value, err := secret.Generate(secret.TokenBytes)
	if err != nil {
		s.logger.Error("Failed to generate login token", zap.Error(err))
		return nil, domain.ErrInternal
	}
	token := &domain.Token{
		Value:     value,
		Kind:      domain.TokenKindAccess,
		Owner:     &domain.Owner{Username: user.Username},
		ClientID:  user.ClientID,
		Scope:     user.Scope,
		IssuedAt:  now,
		ExpiresIn: s.cfg.LoginTokenTTL,
		Active:    true,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		s.logger.Error("Failed to store login token", zap.Error(err))
		return nil, domain.ErrInternal
	}

	sessionID, err := secret.Generate(secret.TokenBytes)
	if err != nil {
		s.logger.Error("Failed to generate session id", zap.Error(err))
		return nil, domain.ErrInternal
	}
	session := &domain.AuthenticatedSession{
		SessionID:       sessionID,
		Username:        user.Username,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("Failed to store session", zap.Error(err))
		if err := s.tokens.Delete(ctx, token.Value); err != nil {
			s.logger.Error("Failed to withdraw login token", zap.Error(err))
		}
		return nil, domain.ErrInternal
	}

	s.opts.metrics.TokenIssued("login")
	s.logger.Info("User logged in", zap.String("username", user.Username))

	return &LoginResult{
		AccessToken: token.Value,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   int(s.cfg.LoginTokenTTL.Seconds()),
		Scope:       user.Scope,
		SessionID:   sessionID,
	}, nil
}
