package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/manorfm/mcpauth/internal/application"
	"github.com/manorfm/mcpauth/internal/domain"
	httperrors "github.com/manorfm/mcpauth/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// RegisterClientRequest is the RFC 7591 registration body
type RegisterClientRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// RegisterClientResponse is the RFC 7591 client information response
type RegisterClientResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// OAuth2Handler serves discovery, registration and the OAuth endpoints
type OAuth2Handler struct {
	oauth2Service OAuth2Service
	clientService ClientService
	logger        *zap.Logger
}

func NewOAuth2Handler(oauth2Service OAuth2Service, clientService ClientService, logger *zap.Logger) *OAuth2Handler {
	return &OAuth2Handler{
		oauth2Service: oauth2Service,
		clientService: clientService,
		logger:        logger,
	}
}

// MetadataHandler serves /.well-known/oauth-authorization-server
// @Summary Authorization server metadata
// @Description RFC 8414 discovery document
// @Tags discovery
// @Produce json
// @Success 200 {object} application.Metadata
// @Router /.well-known/oauth-authorization-server [get]
func (h *OAuth2Handler) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	httperrors.RespondJSON(w, http.StatusOK, h.oauth2Service.Metadata())
}

// RegisterHandler handles dynamic client registration
// @Summary Register a client
// @Description RFC 7591 dynamic client registration
// @Tags oauth2
// @Accept json
// @Produce json
// @Param client body RegisterClientRequest true "Client metadata"
// @Success 201 {object} RegisterClientResponse
// @Failure 400 {object} httperrors.ErrorResponse
// @Failure 429 {object} httperrors.ErrorResponse
// @Router /register [post]
func (h *OAuth2Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterClientRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debug("Failed to decode registration body", zap.Error(err))
		httperrors.RespondWithError(w, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
		return
	}

	client, err := h.clientService.Register(r.Context(), application.RegisterClientRequest{
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	})
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusCreated, RegisterClientResponse{
		ClientID:                client.ClientID,
		ClientSecret:            client.ClientSecret,
		ClientIDIssuedAt:        client.IssuedAt.Unix(),
		ClientSecretExpiresAt:   0,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   client.Scope,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
	})
}

// AuthorizeHandler issues an authorization code and returns it as data
// @Summary Authorize a client
// @Description Issues a PKCE bound authorization code for a logged in user
// @Tags oauth2
// @Produce json
// @Param response_type query string true "Must be code"
// @Param client_id query string true "Client identifier"
// @Param redirect_uri query string true "Registered redirect URI"
// @Param scope query string false "Requested scopes"
// @Param state query string false "Opaque client state"
// @Param code_challenge query string true "PKCE challenge"
// @Param code_challenge_method query string true "Must be S256"
// @Param username query string true "Logged in user"
// @Param session_id query string false "Session from /auth/login"
// @Success 200 {object} application.AuthorizeResult
// @Failure 400 {object} httperrors.ErrorResponse
// @Failure 401 {object} httperrors.ErrorResponse
// @Router /auth/authorize [get]
func (h *OAuth2Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := h.oauth2Service.Authorize(r.Context(), application.AuthorizeRequest{
		ResponseType:        query.Get("response_type"),
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		Username:            query.Get("username"),
		SessionID:           query.Get("session_id"),
	})
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, result)
}

// TokenHandler accepts JSON or form bodies
// @Summary Exchange a grant for tokens
// @Description Supports authorization_code, refresh_token, password and client_credentials
// @Tags oauth2
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "Grant type"
// @Param code formData string false "Authorization code"
// @Param redirect_uri formData string false "Redirect URI used at authorize"
// @Param client_id formData string true "Client identifier"
// @Param client_secret formData string false "Client secret"
// @Param code_verifier formData string false "PKCE verifier"
// @Param refresh_token formData string false "Refresh token"
// @Success 200 {object} application.TokenResponse
// @Failure 400 {object} httperrors.ErrorResponse
// @Failure 401 {object} httperrors.ErrorResponse
// @Router /auth/token [post]
func (h *OAuth2Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	resp, err := h.oauth2Service.Token(r.Context(), application.TokenRequest{
		GrantType:    params["grant_type"],
		Code:         params["code"],
		RedirectURI:  params["redirect_uri"],
		ClientID:     params["client_id"],
		ClientSecret: params["client_secret"],
		CodeVerifier: params["code_verifier"],
		RefreshToken: params["refresh_token"],
		Username:     params["username"],
		Password:     params["password"],
		Scope:        params["scope"],
	})
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, resp)
}

// IntrospectHandler implements RFC 7662
// @Summary Introspect a token
// @Tags oauth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "Token to inspect"
// @Success 200 {object} application.IntrospectionResult
// @Failure 400 {object} httperrors.ErrorResponse
// @Router /token/introspect [post]
func (h *OAuth2Handler) IntrospectHandler(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	result, err := h.oauth2Service.Introspect(r.Context(), params["token"])
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, result)
}

// RevokeHandler implements RFC 7009. Unknown tokens still get 200.
// @Summary Revoke a token
// @Tags oauth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "Token to revoke"
// @Success 200 {object} object
// @Failure 400 {object} httperrors.ErrorResponse
// @Router /token/revoke [post]
func (h *OAuth2Handler) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	if err := h.oauth2Service.Revoke(r.Context(), params["token"]); err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, struct{}{})
}
