package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// TokenBytes is the amount of randomness behind every token, code, session
// id and client secret: 256 bits.
const TokenBytes = 32

// Generate returns a base64url-encoded string of n random bytes
func Generate(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Token returns a fresh opaque token with the given prefix
func Token(prefix string) (string, error) {
	value, err := Generate(TokenBytes)
	if err != nil {
		return "", err
	}
	return prefix + value, nil
}

// Hash returns the hex-encoded SHA-256 of value. Stores key tokens by hash
// so raw bearer values never appear in key names.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
