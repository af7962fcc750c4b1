package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/secret"
	"go.uber.org/zap"
)

const authorizationCodePrefix = "auth_code_"

// Metadata is the RFC 8414 authorization server metadata document
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Username            string
	SessionID           string
}

// AuthorizeResult hands the code back as data instead of redirecting
type AuthorizeResult struct {
	AuthorizationCode string `json:"authorization_code"`
	CallbackURL       string `json:"callback_url"`
	Message           string `json:"message"`
}

// TokenRequest holds every parameter any supported grant may use
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Username     string
	Password     string
	Scope        string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// IntrospectionResult follows RFC 7662. Inactive tokens carry no other fields.
type IntrospectionResult struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// OAuth2Service implements the authorize, token, introspection and
// revocation endpoints
type OAuth2Service struct {
	clients     domain.ClientRepository
	sessions    domain.SessionRepository
	codes       domain.AuthorizationCodeRepository
	tokens      domain.TokenRepository
	credentials domain.CredentialStore
	cfg         *config.Config
	opts        options
	logger      *zap.Logger
}

func NewOAuth2Service(
	clients domain.ClientRepository,
	sessions domain.SessionRepository,
	codes domain.AuthorizationCodeRepository,
	tokens domain.TokenRepository,
	credentials domain.CredentialStore,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *OAuth2Service {
	return &OAuth2Service{
		clients:     clients,
		sessions:    sessions,
		codes:       codes,
		tokens:      tokens,
		credentials: credentials,
		cfg:         cfg,
		opts:        newOptions(opts),
		logger:      logger,
	}
}

func (s *OAuth2Service) Metadata() *Metadata {
	issuer := s.cfg.IssuerURL
	return &Metadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/auth/authorize",
		TokenEndpoint:                     issuer + "/auth/token",
		RegistrationEndpoint:              issuer + "/register",
		IntrospectionEndpoint:             issuer + "/token/introspect",
		RevocationEndpoint:                issuer + "/token/revoke",
		ScopesSupported:                   domain.SplitScope(domain.DefaultScope),
		ResponseTypesSupported:            []string{domain.ResponseTypeCode},
		GrantTypesSupported:               supportedGrantTypes,
		TokenEndpointAuthMethodsSupported: []string{domain.AuthMethodClientSecretPost, domain.AuthMethodNone},
		CodeChallengeMethodsSupported:     []string{domain.CodeChallengeMethodS256},
	}
}

// Authorize issues an authorization code to a logged-in user. Checks run in
// a fixed order and each failure has its own error code.
func (s *OAuth2Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	s.logger.Debug("Authorize request",
		zap.String("client_id", req.ClientID),
		zap.String("username", req.Username),
		zap.String("redirect_uri", req.RedirectURI))

	result, err := s.authorize(ctx, req)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	return result, nil
}

func (s *OAuth2Service) authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ResponseType != domain.ResponseTypeCode {
		return nil, domain.ErrUnsupportedResponseType
	}

	if req.CodeChallenge == "" || req.CodeChallengeMethod == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("code_challenge and code_challenge_method are required")
	}
	if req.CodeChallengeMethod != domain.CodeChallengeMethodS256 {
		return nil, domain.ErrInvalidRequest.WithMessage("code_challenge_method must be S256")
	}

	client, _, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.RedirectURI == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("redirect_uri is required")
	}
	if client != nil {
		if !client.HasRedirectURI(req.RedirectURI) {
			return nil, domain.ErrInvalidRequest.WithMessage("redirect_uri is not registered for this client")
		}
		if err := s.checkGrantAllowed(client, domain.GrantTypeAuthorizationCode); err != nil {
			return nil, err
		}
	}

	if req.Username == "" {
		return nil, domain.ErrAuthenticationRequired
	}
	if _, err := s.credentials.FindByUsername(ctx, req.Username); err != nil {
		return nil, domain.ErrInvalidUser
	}
	if err := s.requireSession(ctx, req.Username, req.SessionID); err != nil {
		return nil, err
	}

	scope := scopeString(req.Scope)
	if scope == "" {
		scope = domain.DefaultScope
	}

	value, err := secret.Token(authorizationCodePrefix)
	if err != nil {
		s.logger.Error("Failed to generate authorization code", zap.Error(err))
		return nil, domain.ErrInternal
	}
	code := &domain.AuthorizationCode{
		Code:                value,
		ClientID:            req.ClientID,
		Username:            req.Username,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           s.opts.clock(),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		s.logger.Error("Failed to store authorization code", zap.Error(err))
		return nil, domain.ErrInternal
	}

	callbackURL, err := buildCallbackURL(req.RedirectURI, value, req.State)
	if err != nil {
		return nil, domain.ErrInvalidRequest.WithMessage("Invalid redirect_uri")
	}

	s.logger.Info("Authorization code issued",
		zap.String("client_id", req.ClientID),
		zap.String("username", req.Username))

	return &AuthorizeResult{
		AuthorizationCode: value,
		CallbackURL:       callbackURL,
		Message:           fmt.Sprintf("Authorization granted for authenticated user '%s'", req.Username),
	}, nil
}

// requireSession accepts the named session when one is given, otherwise any
// unexpired session of the user
func (s *OAuth2Service) requireSession(ctx context.Context, username, sessionID string) error {
	now := s.opts.clock()

	if sessionID != "" {
		session, err := s.sessions.FindByID(ctx, sessionID)
		if err != nil {
			if !errors.Is(err, domain.ErrSessionNotFound) {
				s.logger.Error("Failed to load session", zap.Error(err))
				return domain.ErrInternal
			}
			return domain.ErrSessionRequired
		}
		if session.Username != username || session.IsExpired(now) {
			return domain.ErrSessionRequired
		}
		return nil
	}

	sessions, err := s.sessions.ListByUsername(ctx, username)
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		return domain.ErrInternal
	}
	for _, session := range sessions {
		if !session.IsExpired(now) {
			return nil
		}
	}
	return domain.ErrSessionRequired
}

func buildCallbackURL(redirectURI, code, state string) (string, error) {
	callback, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	query := callback.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	callback.RawQuery = query.Encode()
	return callback.String(), nil
}

// Token dispatches on grant_type
func (s *OAuth2Service) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	s.logger.Debug("Token request",
		zap.String("grant_type", req.GrantType),
		zap.String("client_id", req.ClientID))

	var (
		resp *TokenResponse
		err  error
	)
	switch req.GrantType {
	case domain.GrantTypeAuthorizationCode:
		resp, err = s.exchangeAuthorizationCode(ctx, req)
	case domain.GrantTypeRefreshToken:
		resp, err = s.refreshAccessToken(ctx, req)
	case domain.GrantTypePassword:
		resp, err = s.passwordGrant(ctx, req)
	case domain.GrantTypeClientCredentials:
		resp, err = s.clientCredentialsGrant(ctx, req)
	default:
		err = domain.ErrUnsupportedGrantType.WithMessage("Unsupported grant type: %s", req.GrantType)
	}
	if err != nil {
		s.logger.Info("Token request rejected",
			zap.String("grant_type", req.GrantType),
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		s.recordError(err)
		return nil, err
	}

	s.opts.metrics.TokenIssued(req.GrantType)
	return resp, nil
}

func (s *OAuth2Service) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" || req.ClientID == "" || req.CodeVerifier == "" {
		return nil, domain.ErrMissingParameters.WithMessage("code, client_id and code_verifier are required")
	}

	// Resolved up front, enforced inside Consume so a rejected request
	// leaves the code unused
	client, _, clientErr := s.lookupClient(ctx, req.ClientID)
	now := s.opts.clock()

	code, err := s.codes.Consume(ctx, req.Code, func(code *domain.AuthorizationCode) error {
		if code.ClientID != req.ClientID {
			return domain.ErrClientMismatch
		}
		if req.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
			return domain.ErrRedirectMismatch
		}
		if code.IsExpired(now, s.cfg.CodeTTL) {
			return domain.ErrInvalidGrant.WithMessage("Authorization code expired")
		}
		if err := VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod); err != nil {
			return err
		}
		if clientErr != nil {
			return clientErr
		}
		if client != nil && req.ClientSecret != "" && !client.IsPublic() && !secretsEqual(req.ClientSecret, client.ClientSecret) {
			return domain.ErrInvalidClientCredentials
		}
		return s.checkGrantAllowed(client, domain.GrantTypeAuthorizationCode)
	})
	if err != nil {
		return nil, s.asDomainError(err)
	}

	withRefresh := client == nil || client.HasGrantType(domain.GrantTypeRefreshToken)
	return s.issueTokens(ctx, &domain.Owner{Username: code.Username}, code.ClientID, code.Scope, withRefresh)
}

func (s *OAuth2Service) refreshAccessToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" || req.ClientID == "" {
		return nil, domain.ErrMissingParameters.WithMessage("refresh_token and client_id are required")
	}

	client, _, clientErr := s.lookupClient(ctx, req.ClientID)
	now := s.opts.clock()

	value, err := secret.Generate(secret.TokenBytes)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, domain.ErrInternal
	}
	next := &domain.Token{
		Value:     value,
		Kind:      domain.TokenKindAccess,
		IssuedAt:  now,
		ExpiresIn: s.cfg.AccessTokenTTL,
		Active:    true,
	}

	var expired *domain.Token
	err = s.tokens.Rotate(ctx, req.RefreshToken, next, func(refresh *domain.Token) error {
		if refresh.Kind != domain.TokenKindRefresh || !refresh.Active {
			return domain.ErrInvalidGrant.WithMessage("Invalid refresh token")
		}
		if refresh.ClientID != req.ClientID {
			return domain.ErrInvalidGrant.WithMessage("Refresh token was not issued to this client")
		}
		if refresh.IsExpired(now) {
			expired = refresh
			return domain.ErrInvalidGrant.WithMessage("Refresh token expired")
		}
		if clientErr != nil {
			return clientErr
		}
		if err := s.checkGrantAllowed(client, domain.GrantTypeRefreshToken); err != nil {
			return err
		}

		next.Owner = refresh.Owner
		next.ClientID = refresh.ClientID
		next.Scope = refresh.Scope
		return nil
	})
	if expired != nil {
		s.purgeExpired(ctx, now, expired)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, domain.ErrInvalidGrant.WithMessage("Invalid refresh token")
		}
		return nil, s.asDomainError(err)
	}

	s.logger.Info("Access token rotated", zap.String("client_id", next.ClientID))
	return &TokenResponse{
		AccessToken:  next.Value,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: req.RefreshToken,
		Scope:        next.Scope,
	}, nil
}

// purgeExpired deletes an expired refresh token and its linked access token
// only if that one has expired too
func (s *OAuth2Service) purgeExpired(ctx context.Context, now time.Time, refresh *domain.Token) {
	if err := s.tokens.Delete(ctx, refresh.Value); err != nil {
		s.logger.Warn("Failed to purge expired refresh token", zap.Error(err))
	}
	if refresh.Linked == "" {
		return
	}
	linked, err := s.tokens.Find(ctx, refresh.Linked)
	if err != nil || !linked.IsExpired(now) {
		return
	}
	if err := s.tokens.Delete(ctx, linked.Value); err != nil {
		s.logger.Warn("Failed to purge expired access token", zap.Error(err))
	}
}

func (s *OAuth2Service) passwordGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" || req.ClientID == "" {
		return nil, domain.ErrMissingParameters.WithMessage("username, password and client_id are required")
	}

	user, err := s.credentials.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if user.ClientID != req.ClientID {
		return nil, domain.ErrInvalidCredentials.WithMessage("Client ID does not match user")
	}

	return s.issueTokens(ctx, &domain.Owner{Username: user.Username}, user.ClientID, user.Scope, false)
}

func (s *OAuth2Service) clientCredentialsGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, domain.ErrMissingParameters.WithMessage("client_id and client_secret are required")
	}

	client, err := s.clients.FindByID(ctx, req.ClientID)
	if err != nil {
		if !errors.Is(err, domain.ErrClientNotFound) {
			s.logger.Error("Failed to load client", zap.Error(err))
			return nil, domain.ErrInternal
		}
		return nil, domain.ErrInvalidClientCredentials
	}
	if client.IsPublic() || !secretsEqual(req.ClientSecret, client.ClientSecret) {
		return nil, domain.ErrInvalidClientCredentials
	}
	if err := s.checkGrantAllowed(client, domain.GrantTypeClientCredentials); err != nil {
		return nil, err
	}

	scope := client.Scope
	if req.Scope != "" {
		allowed := &domain.AccessToken{Scopes: domain.SplitScope(client.Scope)}
		if !allowed.HasScopes(domain.SplitScope(req.Scope)...) {
			return nil, domain.ErrInvalidRequest.WithMessage("Requested scope exceeds the client registration")
		}
		scope = scopeString(req.Scope)
	}

	return s.issueTokens(ctx, nil, client.ClientID, scope, false)
}

func (s *OAuth2Service) issueTokens(ctx context.Context, owner *domain.Owner, clientID, scope string, withRefresh bool) (*TokenResponse, error) {
	now := s.opts.clock()

	value, err := secret.Generate(secret.TokenBytes)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, domain.ErrInternal
	}
	access := &domain.Token{
		Value:     value,
		Kind:      domain.TokenKindAccess,
		Owner:     owner,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresIn: s.cfg.AccessTokenTTL,
		Active:    true,
	}

	var refresh *domain.Token
	if withRefresh {
		refreshValue, err := secret.Generate(secret.TokenBytes)
		if err != nil {
			s.logger.Error("Failed to generate refresh token", zap.Error(err))
			return nil, domain.ErrInternal
		}
		refresh = &domain.Token{
			Value:     refreshValue,
			Kind:      domain.TokenKindRefresh,
			Owner:     owner,
			ClientID:  clientID,
			Scope:     scope,
			IssuedAt:  now,
			ExpiresIn: s.cfg.RefreshTokenTTL,
			Active:    true,
			Linked:    access.Value,
		}
		access.Linked = refresh.Value
	}

	if err := s.tokens.Create(ctx, access); err != nil {
		s.logger.Error("Failed to store access token", zap.Error(err))
		return nil, domain.ErrInternal
	}
	resp := &TokenResponse{
		AccessToken: access.Value,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:       scope,
	}
	if refresh != nil {
		if err := s.tokens.Create(ctx, refresh); err != nil {
			s.logger.Error("Failed to store refresh token", zap.Error(err))
			return nil, domain.ErrInternal
		}
		resp.RefreshToken = refresh.Value
	}

	s.logger.Info("Tokens issued",
		zap.String("client_id", clientID),
		zap.String("username", access.Username()),
		zap.Bool("refresh_token", refresh != nil))
	return resp, nil
}

// Introspect reports whether a token is active. Expired entries are removed.
func (s *OAuth2Service) Introspect(ctx context.Context, value string) (*IntrospectionResult, error) {
	if value == "" {
		return nil, domain.ErrMissingParameters.WithMessage("token is required")
	}

	token, err := s.tokens.Find(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			s.opts.metrics.Introspected(false)
			return &IntrospectionResult{Active: false}, nil
		}
		s.logger.Error("Failed to load token", zap.Error(err))
		return nil, domain.ErrInternal
	}

	if token.IsExpired(s.opts.clock()) {
		if err := s.tokens.Delete(ctx, value); err != nil {
			s.logger.Warn("Failed to purge expired token", zap.Error(err))
		}
		s.opts.metrics.Introspected(false)
		return &IntrospectionResult{Active: false}, nil
	}
	if !token.Active {
		s.opts.metrics.Introspected(false)
		return &IntrospectionResult{Active: false}, nil
	}

	s.opts.metrics.Introspected(true)
	return &IntrospectionResult{
		Active:    true,
		ClientID:  token.ClientID,
		Username:  token.Username(),
		Scope:     token.Scope,
		Exp:       token.ExpiresAt().Unix(),
		TokenType: string(token.Kind),
	}, nil
}

// Revoke removes a token. Unknown tokens are not an error.
func (s *OAuth2Service) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	if err := s.tokens.Delete(ctx, value); err != nil {
		s.logger.Error("Failed to revoke token", zap.Error(err))
		return domain.ErrInternal
	}
	return nil
}

// lookupClient resolves a client id against the ClientRegistry first and the
// users' own client ids second. Exactly one of the results is non-nil on success.
func (s *OAuth2Service) lookupClient(ctx context.Context, clientID string) (*domain.RegisteredClient, *domain.User, error) {
	if clientID == "" {
		return nil, nil, domain.ErrInvalidClient
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err == nil {
		return client, nil, nil
	}
	if !errors.Is(err, domain.ErrClientNotFound) {
		s.logger.Error("Failed to load client", zap.String("client_id", clientID), zap.Error(err))
		return nil, nil, domain.ErrInternal
	}

	user, err := s.credentials.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, nil, domain.ErrInvalidClient
	}
	return nil, user, nil
}

// checkGrantAllowed enforces the grant types a registered client declared.
// User-owned client ids are not restricted.
func (s *OAuth2Service) checkGrantAllowed(client *domain.RegisteredClient, grantType string) error {
	if client == nil || !s.cfg.EnforceClientGrantTypes || client.HasGrantType(grantType) {
		return nil
	}
	return domain.ErrUnauthorizedClient.WithMessage("Client is not registered for the %s grant", grantType)
}

func (s *OAuth2Service) recordError(err error) {
	var domainErr domain.Error
	if errors.As(err, &domainErr) {
		s.opts.metrics.OAuthError(domainErr.GetCode())
	}
}

func (s *OAuth2Service) asDomainError(err error) error {
	var domainErr domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	s.logger.Error("Token store failure", zap.Error(err))
	return domain.ErrInternal
}

func secretsEqual(given, stored string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}

// scopeString normalises whitespace in a scope parameter
func scopeString(scope string) string {
	return strings.Join(domain.SplitScope(scope), " ")
}
