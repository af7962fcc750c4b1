package resource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIntrospectionVerifier_Verify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantScopes []string
	}{
		{
			name:       "active token",
			status:     http.StatusOK,
			body:       `{"active":true,"client_id":"demo_client","username":"user1","scope":"mcp:read  mcp:write","exp":1700000000}`,
			wantScopes: []string{"mcp:read", "mcp:write"},
		},
		{
			name:    "inactive token",
			status:  http.StatusOK,
			body:    `{"active":false}`,
			wantErr: true,
		},
		{
			name:    "refresh token",
			status:  http.StatusOK,
			body:    `{"active":true,"client_id":"demo_client","username":"user1","scope":"mcp:read","token_type":"refresh_token"}`,
			wantErr: true,
		},
		{
			name:       "explicit access token type",
			status:     http.StatusOK,
			body:       `{"active":true,"client_id":"demo_client","username":"user1","scope":"mcp:read","exp":1700000000,"token_type":"access_token"}`,
			wantScopes: []string{"mcp:read"},
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error":"internal_error"}`,
			wantErr: true,
		},
		{
			name:    "undecodable body",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken, gotContentType string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				gotToken = r.PostForm.Get("token")
				gotContentType = r.Header.Get("Content-Type")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			verifier := NewIntrospectionVerifier(srv.URL, time.Second, zap.NewNop())
			token, err := verifier.Verify(context.Background(), "opaque-token")

			assert.Equal(t, "opaque-token", gotToken)
			assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAccess)
				assert.Nil(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "opaque-token", token.Token)
			assert.Equal(t, "demo_client", token.ClientID)
			assert.Equal(t, "user1", token.Username)
			assert.Equal(t, tt.wantScopes, token.Scopes)
			assert.Equal(t, int64(1700000000), token.ExpiresAt)
		})
	}
}

func TestIntrospectionVerifier_FailsClosed(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		verifier := NewIntrospectionVerifier("http://127.0.0.1:1", time.Second, zap.NewNop())
		_, err := verifier.Verify(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoAccess)
	})

	t.Run("unreachable server", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		verifier := NewIntrospectionVerifier(url, time.Second, zap.NewNop())
		_, err := verifier.Verify(context.Background(), "opaque-token")
		assert.ErrorIs(t, err, ErrNoAccess)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		verifier := NewIntrospectionVerifier(srv.URL, 50*time.Millisecond, zap.NewNop())
		_, err := verifier.Verify(context.Background(), "opaque-token")
		assert.ErrorIs(t, err, ErrNoAccess)
	})
}
