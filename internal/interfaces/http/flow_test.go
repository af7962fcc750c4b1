package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/credentials"
	"github.com/manorfm/mcpauth/internal/infrastructure/metrics"
	"github.com/manorfm/mcpauth/internal/infrastructure/repository"
	"github.com/manorfm/mcpauth/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	flowRedirectURI = "http://localhost:8080/callback"
	flowVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	flowChallenge   = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type servers struct {
	auth     *httptest.Server
	resource *httptest.Server
}

func startServers(t *testing.T) *servers {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop()
	store, err := credentials.NewStore(map[string]credentials.UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client", Scope: "mcp:read mcp:write"},
		"user2": {Password: "hunter2", ClientID: "other_client", Scope: "mcp:read"},
	}, logger)
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.RequiredScopes = []string{"mcp:read"}

	authServer := httptest.NewServer(NewRouter(ctx, repository.NewMemoryRepositories(logger), store, metrics.NewRecorder(), cfg, logger))
	t.Cleanup(authServer.Close)

	cfg.IssuerURL = authServer.URL
	verifier := resource.NewIntrospectionVerifier(authServer.URL+"/token/introspect", 2*time.Second, logger)
	resourceRouter, err := NewResourceRouter(ctx, verifier, metrics.NewRecorder(), cfg, logger)
	require.NoError(t, err)

	resourceServer := httptest.NewServer(resourceRouter)
	t.Cleanup(resourceServer.Close)

	return &servers{auth: authServer, resource: resourceServer}
}

func postJSON(t *testing.T, endpoint string, body any, bearer string) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return do(t, req)
}

func postForm(t *testing.T, endpoint string, form url.Values) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, req)
}

func get(t *testing.T, endpoint string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	require.NoError(t, err)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(body) > 0 && json.Valid(body) {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return resp.StatusCode, decoded
}

// authorizationCodeFlow registers a client and runs login, authorize and
// the code exchange, returning the client id and the token response
func authorizationCodeFlow(t *testing.T, s *servers, username, password, scope string) (string, map[string]any) {
	t.Helper()

	status, client := postJSON(t, s.auth.URL+"/register", map[string]any{
		"client_name":   "flow test",
		"redirect_uris": []string{flowRedirectURI},
	}, "")
	require.Equal(t, http.StatusCreated, status)
	clientID := client["client_id"].(string)
	assert.Regexp(t, `^client_[0-9a-z]{26}$`, clientID)
	assert.NotEmpty(t, client["client_secret"])
	assert.Equal(t, float64(0), client["client_secret_expires_at"])

	status, login := postJSON(t, s.auth.URL+"/auth/login", map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, status)

	query := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {flowRedirectURI},
		"state":                 {"xyz"},
		"code_challenge":        {flowChallenge},
		"code_challenge_method": {"S256"},
		"username":              {username},
		"session_id":            {login["session_id"].(string)},
		"scope":                 {scope},
	}
	status, authorization := get(t, s.auth.URL+"/auth/authorize?"+query.Encode())
	require.Equal(t, http.StatusOK, status)

	callback, err := url.Parse(authorization["callback_url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "xyz", callback.Query().Get("state"))
	code := callback.Query().Get("code")
	assert.Equal(t, authorization["authorization_code"], code)

	status, tokens := postForm(t, s.auth.URL+"/auth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {flowRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {flowVerifier},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bearer", tokens["token_type"])

	// The code is single use
	status, reuse := postForm(t, s.auth.URL+"/auth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {clientID},
		"code_verifier": {flowVerifier},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", reuse["error"])

	return clientID, tokens
}

func TestFlow_EndToEnd(t *testing.T) {
	s := startServers(t)

	status, metadata := get(t, s.auth.URL+"/.well-known/oauth-authorization-server")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, s.auth.URL+"/auth/token", metadata["token_endpoint"])

	clientID, tokens := authorizationCodeFlow(t, s, "user1", "password123", "")
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)

	status, result := postJSON(t, s.resource.URL+"/tools/protected_tool_1", map[string]any{}, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "This is protected data 1", result["result"])

	status, result = postJSON(t, s.resource.URL+"/tools/whoami", map[string]any{}, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, clientID, result["result"].(map[string]any)["client_id"])
	assert.Equal(t, "user1", result["result"].(map[string]any)["username"])

	// Rotation deactivates the old access token and keeps the refresh token
	status, rotated := postForm(t, s.auth.URL+"/auth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {clientID},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, refresh, rotated["refresh_token"])

	status, _ = postJSON(t, s.resource.URL+"/tools/protected_tool_1", map[string]any{}, access)
	assert.Equal(t, http.StatusUnauthorized, status)

	newAccess := rotated["access_token"].(string)
	status, _ = postJSON(t, s.resource.URL+"/tools/protected_tool_2", map[string]any{}, newAccess)
	assert.Equal(t, http.StatusOK, status)

	// Revocation is idempotent and takes effect at the resource server
	for i := 0; i < 2; i++ {
		status, body := postForm(t, s.auth.URL+"/token/revoke", url.Values{"token": {newAccess}})
		assert.Equal(t, http.StatusOK, status)
		assert.Empty(t, body)
	}
	status, introspection := postForm(t, s.auth.URL+"/token/introspect", url.Values{"token": {newAccess}})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"active": false}, introspection)

	status, denied := postJSON(t, s.resource.URL+"/tools/protected_tool_1", map[string]any{}, newAccess)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_token", denied["error"])
}

func TestFlow_ResourceServerErrors(t *testing.T) {
	s := startServers(t)
	_, tokens := authorizationCodeFlow(t, s, "user2", "hunter2", "mcp:read")
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)
	assert.Equal(t, "mcp:read", tokens["scope"])

	tests := []struct {
		name           string
		tool           string
		bearer         string
		expectedStatus int
		expectedError  string
	}{
		{name: "read scope suffices", tool: "protected_tool_1", bearer: access, expectedStatus: http.StatusOK},
		{name: "write scope missing", tool: "protected_tool_2", bearer: access, expectedStatus: http.StatusForbidden, expectedError: "insufficient_scope"},
		{name: "unknown tool", tool: "nope", bearer: access, expectedStatus: http.StatusNotFound, expectedError: "tool_not_found"},
		{name: "no token", tool: "protected_tool_1", expectedStatus: http.StatusUnauthorized, expectedError: "authentication_required"},
		{name: "forged token", tool: "protected_tool_1", bearer: "forged", expectedStatus: http.StatusUnauthorized, expectedError: "invalid_token"},
		{name: "refresh token as bearer", tool: "protected_tool_1", bearer: refresh, expectedStatus: http.StatusUnauthorized, expectedError: "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postJSON(t, s.resource.URL+"/tools/"+tt.tool, map[string]any{}, tt.bearer)
			assert.Equal(t, tt.expectedStatus, status)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, body["error"])
			}
		})
	}
}

func TestFlow_ProtectedResourceMetadata(t *testing.T) {
	s := startServers(t)

	status, metadata := get(t, s.resource.URL+"/.well-known/oauth-protected-resource")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{s.auth.URL}, metadata["authorization_servers"])
	assert.Equal(t, []any{"header"}, metadata["bearer_methods_supported"])
}

func TestFlow_MCPRequiresBearer(t *testing.T) {
	s := startServers(t)

	resp, err := http.Post(s.resource.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `resource_metadata="`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := startServers(t)

	for _, base := range []string{s.auth.URL, s.resource.URL} {
		for path, want := range map[string]string{"/health": "OK", "/health/ready": "Ready", "/health/live": "Alive"} {
			resp, err := http.Get(base + path)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
			assert.Equal(t, want, string(body), path)
		}
	}

	postJSON(t, s.auth.URL+"/auth/login", map[string]string{"username": "user1", "password": "password123"}, "")

	resp, err := http.Get(s.auth.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `mcpauth_tokens_issued_total{grant_type="login"} 1`)
	assert.Contains(t, string(body), `mcpauth_http_request_duration_seconds_count{method="POST",route="/auth/login",status="200"} 1`)
}

func TestRouter_IntrospectionIsNotRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zap.NewNop()
	store, err := credentials.NewStore(map[string]credentials.UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client", Scope: "mcp:read mcp:write"},
	}, logger)
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2

	server := httptest.NewServer(NewRouter(ctx, repository.NewMemoryRepositories(logger), store, nil, cfg, logger))
	defer server.Close()

	for i := 0; i < 10; i++ {
		status, body := postForm(t, server.URL+"/token/introspect", url.Values{"token": {"unknown"}})
		require.Equal(t, http.StatusOK, status, "introspection %d", i)
		assert.Equal(t, false, body["active"])
	}

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		status, _ := postJSON(t, server.URL+"/auth/login", map[string]string{"username": "user1", "password": "password123"}, "")
		statuses = append(statuses, status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestRouter_SwaggerDocs(t *testing.T) {
	s := startServers(t)

	status, doc := get(t, s.auth.URL+"/swagger/doc.json")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2.0", doc["swagger"])

	paths := doc["paths"].(map[string]any)
	for _, path := range []string{
		"/.well-known/oauth-authorization-server",
		"/register",
		"/auth/login",
		"/auth/authorize",
		"/auth/token",
		"/token/introspect",
		"/token/revoke",
	} {
		assert.Contains(t, paths, path)
	}

	resp, err := http.Get(s.auth.URL + "/swagger/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
