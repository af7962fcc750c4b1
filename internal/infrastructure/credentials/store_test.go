package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadFile(t *testing.T) {
	hash, err := password.HashPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name: "yaml with plaintext and hashed passwords",
			content: `
user1:
  password: password123
  client_id: demo_client
  scope: "mcp:read mcp:write"
user2:
  password_hash: "` + hash + `"
  client_id: other_client
`,
		},
		{
			name:    "json users file",
			content: `{"user1": {"password": "password123", "client_id": "demo_client", "scope": "mcp:read mcp:write"}}`,
		},
		{
			name:    "missing password",
			content: "user1:\n  client_id: demo_client\n",
			wantErr: true,
		},
		{
			name:    "missing client id",
			content: "user1:\n  password: password123\n",
			wantErr: true,
		},
		{
			name:    "duplicate client id",
			content: "a:\n  password: x\n  client_id: c\nb:\n  password: y\n  client_id: c\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			content: "user1: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			store, err := LoadFile(path, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			user, err := store.Authenticate(context.Background(), "user1", "password123")
			require.NoError(t, err)
			assert.Equal(t, "demo_client", user.ClientID)
			assert.Equal(t, "mcp:read mcp:write", user.Scope)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestStore_Authenticate(t *testing.T) {
	store, err := NewStore(map[string]UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client"},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid", username: "user1", password: "password123"},
		{name: "wrong password", username: "user1", password: "nope", wantErr: domain.ErrInvalidCredentials},
		{name: "unknown user", username: "ghost", password: "password123", wantErr: domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := store.Authenticate(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, user.Username)
			assert.Equal(t, domain.DefaultScope, user.Scope)
		})
	}
}

func TestStore_Lookups(t *testing.T) {
	store, err := NewStore(map[string]UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client", Scope: "mcp:read"},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	user, err := store.FindByClientID(ctx, "demo_client")
	require.NoError(t, err)
	assert.Equal(t, "user1", user.Username)

	_, err = store.FindByClientID(ctx, "client_unknown")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	user, err = store.FindByUsername(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "mcp:read", user.Scope)

	_, err = store.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
