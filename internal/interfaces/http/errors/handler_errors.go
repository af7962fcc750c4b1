package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manorfm/mcpauth/internal/domain"
)

// ErrorResponse is the OAuth 2.0 error body (RFC 6749 section 5.2)
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func getStatus(err domain.Error) int {
	switch err.GetCode() {
	case domain.ErrInvalidCredentials.GetCode(),
		domain.ErrAuthenticationRequired.GetCode(),
		domain.ErrInvalidUser.GetCode(),
		domain.ErrSessionRequired.GetCode(),
		domain.ErrInvalidClientCredentials.GetCode(),
		domain.ErrInvalidToken.GetCode():
		return http.StatusUnauthorized
	case domain.ErrInsufficientScope.GetCode():
		return http.StatusForbidden
	case domain.ErrToolNotFound.GetCode():
		return http.StatusNotFound
	case domain.ErrRateLimited.GetCode():
		return http.StatusTooManyRequests
	case domain.ErrInternal.GetCode():
		return http.StatusInternalServerError
	}

	return http.StatusBadRequest
}

// StatusFor returns the HTTP status an error is reported with
func StatusFor(err error) int {
	return getStatus(asDomainError(err))
}

// RespondWithError writes err as an OAuth error body. Errors that carry no
// code are reported as internal_error.
func RespondWithError(w http.ResponseWriter, err error) {
	domainErr := asDomainError(err)
	RespondJSON(w, getStatus(domainErr), ErrorResponse{
		Error:            domainErr.GetCode(),
		ErrorDescription: domainErr.GetMessage(),
	})
}

// RespondJSON writes v with the given status
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func asDomainError(err error) domain.Error {
	var domainErr domain.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return domain.ErrInternal
}
