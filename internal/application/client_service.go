package application

import (
	"context"
	"errors"
	"net/url"
	"slices"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/secret"
	"go.uber.org/zap"
)

var supportedGrantTypes = []string{
	domain.GrantTypeAuthorizationCode,
	domain.GrantTypeRefreshToken,
	domain.GrantTypePassword,
	domain.GrantTypeClientCredentials,
}

// RegisterClientRequest carries RFC 7591 client metadata
type RegisterClientRequest struct {
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
}

// ClientService implements dynamic client registration
type ClientService struct {
	clients domain.ClientRepository
	opts    options
	logger  *zap.Logger
}

func NewClientService(clients domain.ClientRepository, logger *zap.Logger, opts ...Option) *ClientService {
	return &ClientService{
		clients: clients,
		opts:    newOptions(opts),
		logger:  logger,
	}
}

// Register validates the metadata, applies defaults and stores a new client.
// Public clients (token_endpoint_auth_method "none") get no secret.
func (s *ClientService) Register(ctx context.Context, req RegisterClientRequest) (*domain.RegisteredClient, error) {
	s.logger.Debug("Registering client", zap.String("client_name", req.ClientName))

	if len(req.RedirectURIs) == 0 {
		return nil, domain.ErrInvalidRequest.WithMessage("redirect_uris is required")
	}
	for _, uri := range req.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" || parsed.Fragment != "" {
			return nil, domain.ErrInvalidRequest.WithMessage("Invalid redirect_uri: %s", uri)
		}
	}

	client := &domain.RegisteredClient{
		ClientID:                domain.NewClientID(),
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		IssuedAt:                s.opts.clock(),
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken}
	}
	if len(client.ResponseTypes) == 0 {
		client.ResponseTypes = []string{domain.ResponseTypeCode}
	}
	if client.Scope == "" {
		client.Scope = domain.DefaultScope
	}
	if client.TokenEndpointAuthMethod == "" {
		client.TokenEndpointAuthMethod = domain.AuthMethodClientSecretPost
	}

	for _, grantType := range client.GrantTypes {
		if !slices.Contains(supportedGrantTypes, grantType) {
			return nil, domain.ErrInvalidRequest.WithMessage("Unsupported grant_type: %s", grantType)
		}
	}
	for _, responseType := range client.ResponseTypes {
		if responseType != domain.ResponseTypeCode {
			return nil, domain.ErrInvalidRequest.WithMessage("Unsupported response_type: %s", responseType)
		}
	}
	switch client.TokenEndpointAuthMethod {
	case domain.AuthMethodClientSecretPost:
		clientSecret, err := secret.Generate(secret.TokenBytes)
		if err != nil {
			s.logger.Error("Failed to generate client secret", zap.Error(err))
			return nil, domain.ErrInternal
		}
		client.ClientSecret = clientSecret
	case domain.AuthMethodNone:
		if client.HasGrantType(domain.GrantTypeClientCredentials) {
			return nil, domain.ErrInvalidRequest.WithMessage("Public clients cannot use client_credentials")
		}
	default:
		return nil, domain.ErrInvalidRequest.WithMessage("Unsupported token_endpoint_auth_method: %s", client.TokenEndpointAuthMethod)
	}

	if err := s.clients.Create(ctx, client); err != nil {
		if errors.Is(err, domain.ErrClientExists) {
			return nil, domain.ErrInvalidRequest.WithMessage("Client already registered")
		}
		s.logger.Error("Failed to store client", zap.Error(err))
		return nil, domain.ErrInternal
	}

	s.logger.Info("Client registered",
		zap.String("client_id", client.ClientID),
		zap.String("client_name", client.ClientName),
		zap.Strings("grant_types", client.GrantTypes))
	return client, nil
}
