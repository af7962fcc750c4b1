package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// ToolHandler runs a tool for an already authorized caller
type ToolHandler func(ctx context.Context, token *domain.AccessToken, args map[string]any) (any, error)

type Tool struct {
	Name           string
	Description    string
	RequiredScopes []string
	Handler        ToolHandler
}

// ToolError wraps a failure inside tool logic so callers can tell it apart
// from an authorization failure
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Dispatcher authorizes tool calls by bearer token and required scopes
// before running any tool logic
type Dispatcher struct {
	verifier domain.TokenVerifier
	metrics  *metrics.Recorder
	logger   *zap.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

func NewDispatcher(verifier domain.TokenVerifier, recorder *metrics.Recorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		verifier: verifier,
		metrics:  recorder,
		logger:   logger,
		tools:    make(map[string]Tool),
	}
}

func (d *Dispatcher) Register(tool Tool) error {
	if tool.Name == "" || tool.Handler == nil {
		return errors.New("tool needs a name and a handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	d.tools[tool.Name] = tool
	return nil
}

// Tools returns the registered tools ordered by name
func (d *Dispatcher) Tools() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tools := make([]Tool, 0, len(d.tools))
	for _, tool := range d.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Authenticate resolves a bearer token. Verifier failures of any kind
// become invalid_token.
func (d *Dispatcher) Authenticate(ctx context.Context, bearer string) (*domain.AccessToken, error) {
	if bearer == "" {
		return nil, domain.ErrAuthenticationRequired.WithMessage("Missing bearer token")
	}

	token, err := d.verifier.Verify(ctx, bearer)
	if err != nil {
		d.logger.Info("Bearer token rejected", zap.Error(err))
		return nil, domain.ErrInvalidToken
	}
	return token, nil
}

// Invoke runs a tool for a verified token
func (d *Dispatcher) Invoke(ctx context.Context, token *domain.AccessToken, name string, args map[string]any) (any, error) {
	d.mu.RLock()
	tool, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		d.metrics.ToolCalled(name, "not_found")
		return nil, domain.ErrToolNotFound.WithMessage("Tool not found: %s", name)
	}

	if token == nil {
		d.metrics.ToolCalled(name, "unauthenticated")
		return nil, domain.ErrAuthenticationRequired
	}
	if missing := token.MissingScopes(tool.RequiredScopes...); len(missing) > 0 {
		d.logger.Info("Tool call denied",
			zap.String("tool", name),
			zap.String("client_id", token.ClientID),
			zap.Strings("missing_scopes", missing))
		d.metrics.ToolCalled(name, "forbidden")
		return nil, domain.ErrInsufficientScope.WithMessage("Missing scopes: %s", strings.Join(missing, " "))
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := tool.Handler(ctx, token, args)
	if err != nil {
		d.logger.Warn("Tool failed", zap.String("tool", name), zap.Error(err))
		d.metrics.ToolCalled(name, "error")
		return nil, &ToolError{Tool: name, Err: err}
	}

	d.metrics.ToolCalled(name, "ok")
	return result, nil
}

// Call authenticates the bearer token, then invokes the tool
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any, bearer string) (any, error) {
	d.logger.Debug("Tool call", zap.String("tool", name))

	token, err := d.Authenticate(ctx, bearer)
	if err != nil {
		d.metrics.ToolCalled(name, "unauthenticated")
		return nil, err
	}
	return d.Invoke(ctx, token, name, args)
}
