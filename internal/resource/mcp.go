package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	authErrorPrefix = "authentication error: "
	toolErrorPrefix = "tool error: "
)

// NewMCPHandler exposes every registered tool over the MCP streamable HTTP
// transport. The handler expects the bearer middleware to have stored the
// verified token on the request context.
func NewMCPHandler(d *Dispatcher, name, version string) http.Handler {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	for _, tool := range d.Tools() {
		mcpServer.AddTool(
			mcp.NewTool(tool.Name, mcp.WithDescription(tool.Description)),
			d.mcpToolHandler(tool.Name),
		)
	}

	return server.NewStreamableHTTPServer(mcpServer,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if token, ok := domain.GetAccessToken(r.Context()); ok {
				ctx = domain.WithAccessToken(ctx, token)
			}
			return ctx
		}),
	)
}

func (d *Dispatcher) mcpToolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		token, _ := domain.GetAccessToken(ctx)

		result, err := d.Invoke(ctx, token, name, request.GetArguments())
		if err != nil {
			var toolErr *ToolError
			if errors.As(err, &toolErr) {
				return mcp.NewToolResultError(toolErrorPrefix + toolErr.Err.Error()), nil
			}
			return mcp.NewToolResultError(authErrorPrefix + errorMessage(err)), nil
		}

		text, err := resultText(result)
		if err != nil {
			return mcp.NewToolResultError(toolErrorPrefix + err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func resultText(result any) (string, error) {
	if text, ok := result.(string); ok {
		return text, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func errorMessage(err error) string {
	var domainErr domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.GetCode() + ": " + domainErr.GetMessage()
	}
	return err.Error()
}
