package handlers

import (
	"net/http"

	httperrors "github.com/manorfm/mcpauth/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	SessionID   string `json:"session_id"`
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// LoginHandler takes username and password as JSON or form fields
// @Summary Log a user in
// @Description Opens a session used by /auth/authorize
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Username"
// @Param password formData string true "Password"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} httperrors.ErrorResponse
// @Failure 401 {object} httperrors.ErrorResponse
// @Failure 429 {object} httperrors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	result, err := h.authService.Login(r.Context(), params["username"], params["password"])
	if err != nil {
		h.logger.Debug("Login rejected", zap.String("username", params["username"]), zap.Error(err))
		httperrors.RespondWithError(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
		Scope:       result.Scope,
		SessionID:   result.SessionID,
	})
}
