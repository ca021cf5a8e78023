package identity

import (
	"crypto/rand"
	"encoding/base64"

	"rollbook/cmd/security/token"
)

// NewOpaqueToken returns a cryptographically random token suitable for refresh tokens.
// It is URL-safe (base64url) and SHOULD be stored only on the client.
// The server stores only a hash (see HashRefreshTokenHex).
func NewOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshTokenHex returns the server-stored hash for refresh tokens.
// It uses HMAC-SHA256 if ROLLBOOK_TOKEN_HMAC_KEY is set; otherwise falls back to SHA-256.
func HashRefreshTokenHex(tokenStr string) string { return token.HashRefreshTokenHex(tokenStr) }
