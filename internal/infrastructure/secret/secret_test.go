package secret

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	value, err := Generate(TokenBytes)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(value)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)

	other, err := Generate(TokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, value, other)
}

func TestToken(t *testing.T) {
	value, err := Token("auth_code_")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(value, "auth_code_"))
	assert.Len(t, value, len("auth_code_")+43)
}

func TestHash(t *testing.T) {
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", Hash("test"))
}
