package oauthclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/manorfm/mcpauth/internal/infrastructure/secret"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// maxStaleBuffer caps how long before expiry a token is treated as stale
const maxStaleBuffer = 300 * time.Second

var ErrStateMismatch = errors.New("state returned by the authorization server does not match")

// State is where the orchestrator stands with its cached token
type State int

const (
	NoToken State = iota
	HaveValidToken
	TokenStale
	Refreshing
)

func (s State) String() string {
	switch s {
	case NoToken:
		return "no_token"
	case HaveValidToken:
		return "have_valid_token"
	case TokenStale:
		return "token_stale"
	case Refreshing:
		return "refreshing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config describes the user the orchestrator logs in as and the client it
// registers
type Config struct {
	Username    string
	Password    string
	RedirectURI string
	ClientName  string
	Scope       string
}

type Option func(*Orchestrator)

// WithClock replaces time.Now for staleness checks
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithoutIntrospection relies on the local clock alone to detect stale tokens
func WithoutIntrospection() Option {
	return func(o *Orchestrator) {
		o.introspect = false
	}
}

// Orchestrator obtains and keeps a usable access token: it reuses the stored
// token while it is fresh, refreshes it when stale and falls back to a full
// login, authorize and exchange flow otherwise
type Orchestrator struct {
	api        *API
	storage    TokenStorage
	cfg        Config
	logger     *zap.Logger
	clock      func() time.Time
	introspect bool

	group singleflight.Group

	mu    sync.RWMutex
	state State
}

func NewOrchestrator(api *API, storage TokenStorage, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if cfg.ClientName == "" {
		cfg.ClientName = "mcpauth client"
	}
	o := &Orchestrator{
		api:        api,
		storage:    storage,
		cfg:        cfg,
		logger:     logger,
		clock:      time.Now,
		introspect: true,
		state:      NoToken,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != state {
		o.logger.Debug("Token state changed", zap.Stringer("from", o.state), zap.Stringer("to", state))
	}
	o.state = state
}

// AccessToken returns a token that is valid by both the local clock and the
// authorization server. Concurrent callers share one acquisition.
func (o *Orchestrator) AccessToken(ctx context.Context) (string, error) {
	v, err, _ := o.group.Do("token", func() (any, error) {
		return o.acquire(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (o *Orchestrator) acquire(ctx context.Context) (string, error) {
	tokens, err := o.storage.GetTokens(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load tokens: %w", err)
	}

	if tokens == nil || tokens.AccessToken == "" {
		o.setState(NoToken)
		return o.freshFlow(ctx)
	}

	if !o.isStale(ctx, tokens) {
		o.setState(HaveValidToken)
		return tokens.AccessToken, nil
	}
	o.setState(TokenStale)

	if tokens.RefreshToken != "" {
		o.setState(Refreshing)
		refreshed, err := o.refresh(ctx, tokens)
		if err == nil {
			o.setState(HaveValidToken)
			return refreshed.AccessToken, nil
		}
		o.logger.Warn("Token refresh failed, starting a new authorization", zap.Error(err))

		tokens.RefreshToken = ""
		if err := o.storage.SetTokens(ctx, tokens); err != nil {
			o.logger.Warn("Failed to discard refresh token", zap.Error(err))
		}
	}

	o.setState(NoToken)
	return o.freshFlow(ctx)
}

// isStale applies the local expiry check, then asks the server
func (o *Orchestrator) isStale(ctx context.Context, tokens *StoredTokens) bool {
	lifetime := time.Duration(tokens.ExpiresIn) * time.Second
	buffer := min(maxStaleBuffer, lifetime/2)
	if o.clock().After(tokens.SavedAt.Add(lifetime - buffer)) {
		o.logger.Debug("Access token is close to expiry")
		return true
	}

	if !o.introspect {
		return false
	}
	result, err := o.api.Introspect(ctx, tokens.AccessToken)
	if err != nil {
		o.logger.Warn("Introspection failed, treating token as stale", zap.Error(err))
		return true
	}
	if !result.Active {
		o.logger.Debug("Authorization server reports token inactive")
		return true
	}
	return false
}

func (o *Orchestrator) refresh(ctx context.Context, tokens *StoredTokens) (*StoredTokens, error) {
	client, err := o.storage.GetClientInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load client info: %w", err)
	}
	if client == nil {
		return nil, errors.New("no registered client")
	}

	source := o.oauth2Config(client).TokenSource(o.httpContext(ctx), &oauth2.Token{RefreshToken: tokens.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, err
	}
	return o.save(ctx, token)
}

func (o *Orchestrator) freshFlow(ctx context.Context) (string, error) {
	client, err := o.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	auth, verifier, err := o.authorize(ctx, client)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "invalid_client" {
		// The server no longer knows the stored registration
		o.logger.Info("Stored client rejected, registering again", zap.String("client_id", client.ClientID))
		if client, err = o.register(ctx); err != nil {
			return "", err
		}
		auth, verifier, err = o.authorize(ctx, client)
	}
	if err != nil {
		return "", err
	}

	token, err := o.oauth2Config(client).Exchange(o.httpContext(ctx), auth.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}

	tokens, err := o.save(ctx, token)
	if err != nil {
		return "", err
	}
	o.setState(HaveValidToken)
	return tokens.AccessToken, nil
}

// authorize logs in and obtains a code bound to a new PKCE verifier
func (o *Orchestrator) authorize(ctx context.Context, client *ClientInfo) (*Authorization, string, error) {
	login, err := o.api.Login(ctx, o.cfg.Username, o.cfg.Password)
	if err != nil {
		return nil, "", err
	}

	verifier := oauth2.GenerateVerifier()
	state, err := secret.Generate(16)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate state: %w", err)
	}

	auth, err := o.api.Authorize(ctx, AuthorizeRequest{
		ClientID:      client.ClientID,
		RedirectURI:   o.cfg.RedirectURI,
		Scope:         o.cfg.Scope,
		State:         state,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		Username:      o.cfg.Username,
		SessionID:     login.SessionID,
	})
	if err != nil {
		return nil, "", err
	}
	if auth.State != state {
		return nil, "", ErrStateMismatch
	}
	return auth, verifier, nil
}

func (o *Orchestrator) ensureClient(ctx context.Context) (*ClientInfo, error) {
	client, err := o.storage.GetClientInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load client info: %w", err)
	}
	if client != nil && client.ClientID != "" {
		return client, nil
	}
	return o.register(ctx)
}

func (o *Orchestrator) register(ctx context.Context) (*ClientInfo, error) {
	client, err := o.api.Register(ctx, RegistrationRequest{
		ClientName:              o.cfg.ClientName,
		RedirectURIs:            []string{o.cfg.RedirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Scope:                   o.cfg.Scope,
		TokenEndpointAuthMethod: "client_secret_post",
	})
	if err != nil {
		return nil, err
	}
	if err := o.storage.SetClientInfo(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to store client info: %w", err)
	}
	return client, nil
}

func (o *Orchestrator) save(ctx context.Context, token *oauth2.Token) (*StoredTokens, error) {
	now := o.clock()
	tokens := &StoredTokens{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    expiresIn(token, now),
		RefreshToken: token.RefreshToken,
		SavedAt:      now,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		tokens.Scope = scope
	}

	if err := o.storage.SetTokens(ctx, tokens); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}
	o.logger.Debug("Tokens stored",
		zap.Int("expires_in", tokens.ExpiresIn),
		zap.Bool("has_refresh_token", tokens.RefreshToken != ""))
	return tokens, nil
}

// expiresIn prefers the server's expires_in over the Expiry x/oauth2
// derives from the wall clock
func expiresIn(token *oauth2.Token, now time.Time) int {
	if token.ExpiresIn > 0 {
		return int(token.ExpiresIn)
	}
	if v, ok := token.Extra("expires_in").(float64); ok {
		return int(v)
	}
	if !token.Expiry.IsZero() {
		return int(token.Expiry.Sub(now).Round(time.Second).Seconds())
	}
	return 0
}

func (o *Orchestrator) oauth2Config(client *ClientInfo) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  o.cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   o.api.AuthorizeURL(),
			TokenURL:  o.api.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (o *Orchestrator) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.api.HTTPClient())
}

// TokenSource exposes the orchestrator to x/oauth2 consumers. Every Token
// call goes through AccessToken.
func (o *Orchestrator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, orchestrator: o}
}

// HTTPClient returns a client that resolves the bearer through AccessToken
// on every request. A token revoked at the server is replaced before the
// next call.
func (o *Orchestrator) HTTPClient(ctx context.Context) *http.Client {
	base := http.DefaultTransport
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && hc != nil && hc.Transport != nil {
		base = hc.Transport
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: o.TokenSource(ctx), Base: base},
	}
}

type tokenSource struct {
	ctx          context.Context
	orchestrator *Orchestrator
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.orchestrator.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}
