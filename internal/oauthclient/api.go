package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

// APIError is an error document returned by the authorization server
type APIError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization server returned %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authorization server returned %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// RegistrationRequest is the body of POST /register
type RegistrationRequest struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	SessionID   string `json:"session_id"`
}

// AuthorizeRequest carries the query of GET /auth/authorize
type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	Scope         string
	State         string
	CodeChallenge string
	Username      string
	SessionID     string
}

// Authorization is the code and state parsed from the callback URL
type Authorization struct {
	Code  string
	State string
}

type Introspection struct {
	Active   bool   `json:"active"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// API calls the authorization server endpoints that x/oauth2 does not cover
type API struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPI creates a client for the server at baseURL. A nil httpClient uses
// one with DefaultHTTPTimeout.
func NewAPI(baseURL string, httpClient *http.Client, logger *zap.Logger) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

func (a *API) TokenURL() string {
	return a.baseURL + "/auth/token"
}

func (a *API) AuthorizeURL() string {
	return a.baseURL + "/auth/authorize"
}

// HTTPClient is the client used for every call, including the token
// endpoint calls made through x/oauth2
func (a *API) HTTPClient() *http.Client {
	return a.httpClient
}

func (a *API) Register(ctx context.Context, req RegistrationRequest) (*ClientInfo, error) {
	var resp struct {
		ClientID         string   `json:"client_id"`
		ClientSecret     string   `json:"client_secret"`
		ClientName       string   `json:"client_name"`
		RedirectURIs     []string `json:"redirect_uris"`
		Scope            string   `json:"scope"`
		ClientIDIssuedAt int64    `json:"client_id_issued_at"`
	}
	if err := a.postJSON(ctx, "/register", req, &resp); err != nil {
		return nil, fmt.Errorf("client registration failed: %w", err)
	}

	a.logger.Debug("Client registered", zap.String("client_id", resp.ClientID))
	return &ClientInfo{
		ClientID:     resp.ClientID,
		ClientSecret: resp.ClientSecret,
		ClientName:   resp.ClientName,
		RedirectURIs: resp.RedirectURIs,
		Scope:        resp.Scope,
		IssuedAt:     time.Unix(resp.ClientIDIssuedAt, 0).UTC(),
	}, nil
}

func (a *API) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"username": username, "password": password}
	if err := a.postJSON(ctx, "/auth/login", body, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("login failed: response carries no session_id")
	}
	return &resp, nil
}

// Authorize requests a code with an S256 challenge and reads it back from
// the callback_url in the response
func (a *API) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	query := url.Values{
		"response_type":         {"code"},
		"client_id":             {req.ClientID},
		"redirect_uri":          {req.RedirectURI},
		"code_challenge":        {req.CodeChallenge},
		"code_challenge_method": {"S256"},
		"username":              {req.Username},
		"session_id":            {req.SessionID},
	}
	if req.Scope != "" {
		query.Set("scope", req.Scope)
	}
	if req.State != "" {
		query.Set("state", req.State)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.AuthorizeURL()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AuthorizationCode string `json:"authorization_code"`
		CallbackURL       string `json:"callback_url"`
	}
	if err := a.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	callback, err := url.Parse(resp.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: invalid callback_url: %w", err)
	}
	params := callback.Query()
	if params.Get("code") == "" {
		return nil, fmt.Errorf("authorization failed: callback_url carries no code")
	}
	return &Authorization{Code: params.Get("code"), State: params.Get("state")}, nil
}

func (a *API) Introspect(ctx context.Context, token string) (*Introspection, error) {
	form := url.Values{"token": {token}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/token/introspect", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp Introspection
	if err := a.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("introspection failed: %w", err)
	}
	return &resp, nil
}

func (a *API) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return a.do(httpReq, out)
}

func (a *API) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
