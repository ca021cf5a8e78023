// Package token provides one-way hashing for opaque session tokens.
//
// Refresh tokens are never persisted in plaintext; the server stores a
// 64-char lowercase hex digest and every comparison happens on digests.
// When ROLLBOOK_TOKEN_HMAC_KEY is configured, digests are keyed
// (HMAC-SHA256); otherwise plain SHA-256 is used for dev setups.
package token
