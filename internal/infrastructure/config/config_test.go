package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.ServerPort)
				assert.Equal(t, "http://localhost:9000", cfg.IssuerURL)
				assert.Equal(t, "http://localhost:9000/token/introspect", cfg.IntrospectionURL)
				assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
				assert.Equal(t, time.Hour, cfg.LoginTokenTTL)
				assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
				assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
				assert.Equal(t, []string{"mcp:read", "mcp:write"}, cfg.RequiredScopes)
				assert.True(t, cfg.EnforceClientGrantTypes)
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"PORT":                       "9100",
				"ISSUER_URL":                 "https://auth.example.com/",
				"STORE_BACKEND":              "redis",
				"ACCESS_TOKEN_TTL":           "15m",
				"ENFORCE_CLIENT_GRANT_TYPES": "false",
				"REQUIRED_SCOPES":            "mcp:read",
				"RATE_LIMIT_RPS":             "2.5",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9100, cfg.ServerPort)
				assert.Equal(t, "https://auth.example.com", cfg.IssuerURL)
				assert.Equal(t, "https://auth.example.com/token/introspect", cfg.IntrospectionURL)
				assert.Equal(t, StoreBackendRedis, cfg.StoreBackend)
				assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
				assert.False(t, cfg.EnforceClientGrantTypes)
				assert.Equal(t, []string{"mcp:read"}, cfg.RequiredScopes)
				assert.Equal(t, 2.5, cfg.RateLimitRPS)
			},
		},
		{
			name:    "invalid server port",
			env:     map[string]string{"PORT": "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			env:     map[string]string{"CODE_TTL": "ten minutes"},
			wantErr: true,
		},
		{
			name:    "non positive duration",
			env:     map[string]string{"SESSION_TTL": "0s"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			env:     map[string]string{"ENFORCE_CLIENT_GRANT_TYPES": "maybe"},
			wantErr: true,
		},
		{
			name:    "unknown store backend",
			env:     map[string]string{"STORE_BACKEND": "postgres"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := LoadConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
