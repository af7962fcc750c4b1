package application

import (
	"testing"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestS256Challenge(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, testChallenge, S256Challenge(testVerifier))
}

func TestVerifyPKCE(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		method   string
		wantErr  bool
	}{
		{name: "valid", verifier: testVerifier, method: domain.CodeChallengeMethodS256},
		{name: "wrong verifier", verifier: "not-the-verifier", method: domain.CodeChallengeMethodS256, wantErr: true},
		{name: "empty verifier", verifier: "", method: domain.CodeChallengeMethodS256, wantErr: true},
		{name: "plain method", verifier: testChallenge, method: "plain", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPKCE(tt.verifier, testChallenge, tt.method)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidGrant)
				return
			}
			assert.NoError(t, err)
		})
	}
}
