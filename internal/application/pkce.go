package application

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/manorfm/mcpauth/internal/domain"
)

// S256Challenge derives the PKCE challenge for a verifier
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyPKCE checks a code_verifier against the challenge stored with the
// authorization code. Only S256 is supported.
func VerifyPKCE(verifier, challenge, method string) error {
	if method != domain.CodeChallengeMethodS256 {
		return domain.ErrInvalidGrant.WithMessage("Unsupported code_challenge_method")
	}
	if verifier == "" {
		return domain.ErrInvalidGrant.WithMessage("Missing code_verifier")
	}

	expected := S256Challenge(verifier)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) != 1 {
		return domain.ErrInvalidGrant.WithMessage("Invalid code_verifier")
	}
	return nil
}
