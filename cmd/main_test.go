package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/oauthclient"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		level       string
		wantErr     bool
	}{
		{name: "production", environment: "production", level: "info"},
		{name: "development", environment: "development", level: "debug"},
		{name: "bad level", environment: "production", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Environment = tt.environment
			cfg.LogLevel = tt.level

			logger, err := newLogger(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file falls back to the demo user", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.UsersFile = filepath.Join(t.TempDir(), "users.yaml")

		store, err := loadCredentials(cfg, zap.NewNop())
		require.NoError(t, err)

		user, err := store.FindByUsername(ctx, "user1")
		require.NoError(t, err)
		assert.Equal(t, "demo_client", user.ClientID)
	})

	t.Run("users file", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.UsersFile = filepath.Join(t.TempDir(), "users.yaml")
		require.NoError(t, os.WriteFile(cfg.UsersFile, []byte("alice:\n  password: secret\n  client_id: alice_client\n  scope: mcp:read\n"), 0600))

		store, err := loadCredentials(cfg, zap.NewNop())
		require.NoError(t, err)

		_, err = store.FindByUsername(ctx, "user1")
		assert.Error(t, err)
		user, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice_client", user.ClientID)
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.UsersFile = filepath.Join(t.TempDir(), "users.yaml")
		require.NoError(t, os.WriteFile(cfg.UsersFile, []byte("alice: [not, a, record]"), 0600))

		_, err := loadCredentials(cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestNewTokenStorage(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ClientStorageDir = filepath.Join(t.TempDir(), "state")

	tests := []struct {
		kind    string
		want    any
		wantErr bool
	}{
		{kind: "memory", want: &oauthclient.MemoryStorage{}},
		{kind: "file", want: &oauthclient.FileStorage{}},
		{kind: "redis", want: &oauthclient.RedisStorage{}},
		{kind: "etcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			storage, closeStorage, err := newTokenStorage(tt.kind, cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closeStorage()
			assert.IsType(t, tt.want, storage)
		})
	}
}

func TestContentText(t *testing.T) {
	result := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.NewTextContent("first"),
		mcp.NewTextContent("second"),
	}}
	assert.Equal(t, "first\nsecond", contentText(result))
}
