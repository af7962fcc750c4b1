package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/manorfm/mcpauth/internal/domain"
	httperrors "github.com/manorfm/mcpauth/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// AuthMiddleware protects resource server routes with bearer tokens
type AuthMiddleware struct {
	verifier            domain.TokenVerifier
	resourceMetadataURL string
	logger              *zap.Logger
}

func NewAuthMiddleware(verifier domain.TokenVerifier, resourceMetadataURL string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:            verifier,
		resourceMetadataURL: resourceMetadataURL,
		logger:              logger,
	}
}

// Authenticator verifies the bearer token and stores it on the context
func (m *AuthMiddleware) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := ExtractToken(r)
		if bearer == "" {
			m.RespondWithChallenge(w, domain.ErrAuthenticationRequired.WithMessage("Missing bearer token"))
			return
		}

		token, err := m.verifier.Verify(r.Context(), bearer)
		if err != nil {
			m.logger.Info("Bearer token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			m.RespondWithChallenge(w, domain.ErrInvalidToken)
			return
		}

		ctx := domain.WithAccessToken(r.Context(), token)
		ctx = domain.WithBearerToken(ctx, bearer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScopes rejects tokens missing any of the scopes with 403
func (m *AuthMiddleware) RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := domain.GetAccessToken(r.Context())
			if !ok {
				m.RespondWithChallenge(w, domain.ErrAuthenticationRequired)
				return
			}

			if missing := token.MissingScopes(scopes...); len(missing) > 0 {
				m.RespondWithChallenge(w, domain.ErrInsufficientScope.WithMessage("Missing scopes: %s", strings.Join(missing, " ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithChallenge writes err and, for 401 and 403, an RFC 6750
// WWW-Authenticate header pointing at the protected resource metadata
func (m *AuthMiddleware) RespondWithChallenge(w http.ResponseWriter, err error) {
	status := httperrors.StatusFor(err)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		w.Header().Set("WWW-Authenticate", m.challenge(err))
	}
	httperrors.RespondWithError(w, err)
}

func (m *AuthMiddleware) challenge(err error) string {
	challenge := `Bearer realm="mcpauth"`
	if m.resourceMetadataURL != "" {
		challenge += fmt.Sprintf(`, resource_metadata="%s"`, m.resourceMetadataURL)
	}
	switch httperrors.StatusFor(err) {
	case http.StatusForbidden:
		challenge += `, error="insufficient_scope"`
	case http.StatusUnauthorized:
		if !errors.Is(err, domain.ErrAuthenticationRequired) {
			challenge += `, error="invalid_token"`
		}
	}
	return challenge
}

// ExtractToken returns the credentials of a "Bearer" Authorization header.
// The scheme is case-insensitive.
func ExtractToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
