package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/manorfm/mcpauth/internal/domain"
	httperrors "github.com/manorfm/mcpauth/internal/interfaces/http/errors"
	"github.com/manorfm/mcpauth/internal/interfaces/http/middleware/auth"
	"github.com/manorfm/mcpauth/internal/resource"
	"go.uber.org/zap"
)

// ProtectedResourceMetadata is the RFC 9728 document of the resource server
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

type ToolCallResponse struct {
	Result any `json:"result"`
}

// ResourceHandler serves protected tools over plain HTTP
type ResourceHandler struct {
	dispatcher ToolDispatcher
	auth       *auth.AuthMiddleware
	metadata   ProtectedResourceMetadata
	logger     *zap.Logger
}

func NewResourceHandler(dispatcher ToolDispatcher, authMiddleware *auth.AuthMiddleware, metadata ProtectedResourceMetadata, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{
		dispatcher: dispatcher,
		auth:       authMiddleware,
		metadata:   metadata,
		logger:     logger,
	}
}

// MetadataHandler serves /.well-known/oauth-protected-resource
func (h *ResourceHandler) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	httperrors.RespondJSON(w, http.StatusOK, h.metadata)
}

// CallToolHandler runs /tools/{name}. The body, if any, is a JSON object of
// tool arguments.
func (h *ResourceHandler) CallToolHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]any{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		httperrors.RespondWithError(w, domain.ErrInvalidRequest.WithMessage("Tool arguments must be a JSON object"))
		return
	}

	result, err := h.dispatcher.Call(r.Context(), name, args, auth.ExtractToken(r))
	if err != nil {
		var toolErr *resource.ToolError
		if errors.As(err, &toolErr) {
			httperrors.RespondJSON(w, http.StatusUnprocessableEntity, httperrors.ErrorResponse{
				Error:            "tool_error",
				ErrorDescription: toolErr.Err.Error(),
			})
			return
		}
		h.auth.RespondWithChallenge(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, ToolCallResponse{Result: result})
}
