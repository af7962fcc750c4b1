package domain

import "fmt"

// Error is implemented by every error the authorization and resource servers
// report to callers. The code is the wire-level OAuth error code.
type Error interface {
	error
	GetCode() string
	GetMessage() string
}

// BusinessError is a coded error. Two BusinessErrors match under errors.Is
// when their codes are equal, so a refined message still matches its sentinel.
type BusinessError struct {
	Code    string
	Message string
}

func NewBusinessError(code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) GetCode() string {
	return e.Code
}

func (e *BusinessError) GetMessage() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the error with a more specific message.
func (e *BusinessError) WithMessage(format string, args ...any) *BusinessError {
	return &BusinessError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	// Request shape
	ErrInvalidRequest    = NewBusinessError("invalid_request", "Invalid request")
	ErrMissingParameters = NewBusinessError("missing_parameters", "Missing required parameters")

	// Authentication
	ErrInvalidCredentials     = NewBusinessError("invalid_credentials", "Invalid username or password")
	ErrAuthenticationRequired = NewBusinessError("authentication_required", "User must be logged in before authorization")
	ErrInvalidUser            = NewBusinessError("invalid_user", "Invalid user")
	ErrSessionRequired        = NewBusinessError("session_required", "Valid session required. Please log in again")

	// Authorization endpoint
	ErrInvalidClient           = NewBusinessError("invalid_client", "Invalid client_id")
	ErrUnsupportedResponseType = NewBusinessError("unsupported_response_type", "Only 'code' response type is supported")

	// Token endpoint
	ErrInvalidGrant             = NewBusinessError("invalid_grant", "Invalid authorization grant")
	ErrClientMismatch           = NewBusinessError("client_mismatch", "Client ID mismatch")
	ErrRedirectMismatch         = NewBusinessError("redirect_mismatch", "Redirect URI mismatch")
	ErrUnsupportedGrantType     = NewBusinessError("unsupported_grant_type", "Unsupported grant type")
	ErrUnauthorizedClient       = NewBusinessError("unauthorized_client", "Client is not allowed to use this grant type")
	ErrInvalidClientCredentials = NewBusinessError("invalid_client_credentials", "Invalid client credentials")

	// Resource server
	ErrInvalidToken      = NewBusinessError("invalid_token", "Invalid or expired token")
	ErrInsufficientScope = NewBusinessError("insufficient_scope", "Token lacks required scopes")
	ErrToolNotFound      = NewBusinessError("tool_not_found", "Tool not found")

	// Storage lookups, mapped by services to one of the errors above
	ErrClientNotFound  = NewBusinessError("client_not_found", "Client not found")
	ErrSessionNotFound = NewBusinessError("session_not_found", "Session not found")
	ErrTokenNotFound   = NewBusinessError("token_not_found", "Token not found")
	ErrUserNotFound    = NewBusinessError("user_not_found", "User not found")
	ErrClientExists    = NewBusinessError("client_exists", "Client already exists")

	ErrRateLimited = NewBusinessError("rate_limited", "Rate limit exceeded")
	ErrInternal    = NewBusinessError("internal_error", "Internal server error")
)
