package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/oauthclient"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type clientOptions struct {
	tools   []string
	args    string
	storage string
}

func newClientCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Authorize against the server and call protected tools over MCP",
		Long: `client registers itself, logs in, runs the authorization code flow with
PKCE and calls tools on the resource server. Tokens are cached in the chosen
storage and refreshed when stale. Without --tool every listed tool is called.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runClient(ctx, cmd, cfg, opts, logger)
		},
	}

	cmd.Flags().StringSliceVar(&opts.tools, "tool", nil, "tool to call, repeatable")
	cmd.Flags().StringVar(&opts.args, "args", "{}", "tool arguments as a JSON object")
	cmd.Flags().StringVar(&opts.storage, "storage", "file", "token storage: file, memory or redis")
	return cmd
}

func newTokenStorage(kind string, cfg *config.Config) (oauthclient.TokenStorage, func(), error) {
	switch kind {
	case "memory":
		return oauthclient.NewMemoryStorage(), func() {}, nil
	case "file":
		storage, err := oauthclient.NewFileStorage(cfg.ClientStorageDir)
		return storage, func() {}, err
	case "redis":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		prefix := cfg.RedisKeyPrefix + "client:" + cfg.ClientUsername + ":"
		return oauthclient.NewRedisStorage(rdb, prefix), func() { rdb.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage %q, want file, memory or redis", kind)
}

func runClient(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *clientOptions, logger *zap.Logger) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(opts.args), &args); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	storage, closeStorage, err := newTokenStorage(opts.storage, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	api := oauthclient.NewAPI(cfg.IssuerURL, nil, logger)
	orchestrator := oauthclient.NewOrchestrator(api, storage, oauthclient.Config{
		Username:    cfg.ClientUsername,
		Password:    cfg.ClientPassword,
		RedirectURI: cfg.ClientRedirectURI,
		Scope:       domain.DefaultScope,
	}, logger)

	// Authorize up front so flow errors are reported before any MCP traffic
	if _, err := orchestrator.AccessToken(ctx); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	logger.Info("Authorized", zap.Stringer("state", orchestrator.State()))

	mcpClient, err := client.NewStreamableHttpClient(strings.TrimSuffix(cfg.ResourceURL, "/")+"/mcp",
		transport.WithHTTPBasicClient(orchestrator.HTTPClient(ctx)))
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcpauth-client", Version: version}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	tools := opts.tools
	if len(tools) == 0 {
		listed, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
		for _, tool := range listed.Tools {
			tools = append(tools, tool.Name)
		}
	}

	out := cmd.OutOrStdout()
	for _, name := range tools {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		result, err := mcpClient.CallTool(ctx, req)
		if err != nil {
			return fmt.Errorf("call to %s failed: %w", name, err)
		}

		status := "ok"
		if result.IsError {
			status = "error"
		}
		fmt.Fprintf(out, "%s [%s]: %s\n", name, status, contentText(result))
	}
	return nil
}

func contentText(result *mcp.CallToolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
