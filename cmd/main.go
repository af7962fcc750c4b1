package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/credentials"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mcpauth",
	Short: "OAuth 2.0 authorization server and protected MCP tool server",
	Long: `mcpauth runs an OAuth 2.0 authorization server with PKCE, a resource
server exposing protected tools over HTTP and MCP, and a client that obtains
and refreshes tokens on its own.`,
	SilenceUsage: true,
}

// @title mcpauth Authorization Server API
// @version 1.0
// @description OAuth 2.0 authorization server with PKCE for MCP tool servers
// @host localhost:9000
// @BasePath /
func main() {
	rootCmd.Version = version
	rootCmd.AddCommand(newServeCmd(), newResourceCmd(), newClientCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every command shares
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

// loadCredentials reads the users file, falling back to a single demo user
// when the file does not exist
func loadCredentials(cfg *config.Config, logger *zap.Logger) (domain.CredentialStore, error) {
	store, err := credentials.LoadFile(cfg.UsersFile, logger)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Warn("Users file not found, using the demo user",
		zap.String("users_file", cfg.UsersFile),
		zap.String("username", "user1"))
	return credentials.NewStore(map[string]credentials.UserRecord{
		"user1": {Password: "password123", ClientID: "demo_client", Scope: domain.DefaultScope},
	}, logger)
}
