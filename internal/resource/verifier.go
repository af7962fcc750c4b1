package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/manorfm/mcpauth/internal/domain"
	"go.uber.org/zap"
)

const maxIntrospectionResponse = 64 * 1024

// ErrNoAccess is returned for every token the verifier does not accept
var ErrNoAccess = errors.New("no access")

type introspectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Scope     string `json:"scope"`
	Exp       int64  `json:"exp"`
	TokenType string `json:"token_type"`
}

const refreshTokenType = "refresh_token"

// IntrospectionVerifier checks bearer tokens against the authorization
// server's RFC 7662 endpoint. It fails closed.
type IntrospectionVerifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewIntrospectionVerifier(introspectionURL string, timeout time.Duration, logger *zap.Logger) *IntrospectionVerifier {
	return &IntrospectionVerifier{
		url:    introspectionURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// WithHTTPClient replaces the client used to reach the introspection endpoint
func (v *IntrospectionVerifier) WithHTTPClient(client *http.Client) *IntrospectionVerifier {
	v.client = client
	return v
}

func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (*domain.AccessToken, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrNoAccess)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create introspection request: %w", ErrNoAccess, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("Introspection request failed", zap.String("url", v.url), zap.Error(err))
		return nil, fmt.Errorf("%w: introspection request failed: %w", ErrNoAccess, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read introspection response: %w", ErrNoAccess, err)
	}
	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("Introspection endpoint returned an error", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: introspection failed with status %d", ErrNoAccess, resp.StatusCode)
	}

	var result introspectionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode introspection response: %w", ErrNoAccess, err)
	}
	if !result.Active {
		return nil, fmt.Errorf("%w: token is not active", ErrNoAccess)
	}
	// Refresh tokens introspect as active but never authorize a resource call
	if result.TokenType == refreshTokenType {
		return nil, fmt.Errorf("%w: refresh token presented as bearer", ErrNoAccess)
	}

	return &domain.AccessToken{
		Token:     token,
		ClientID:  result.ClientID,
		Username:  result.Username,
		Scopes:    strings.Fields(result.Scope),
		ExpiresAt: result.Exp,
	}, nil
}
