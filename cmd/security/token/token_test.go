package token

import (
	"strings"
	"testing"
)

func TestHashSHA256Hex_Deterministic(t *testing.T) {
	t.Parallel()

	a := HashSHA256Hex("refresh-token-1")
	b := HashSHA256Hex("refresh-token-1")
	c := HashSHA256Hex("refresh-token-2")

	if a != b {
		t.Fatalf("same input produced different digests: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different inputs produced same digest")
	}
	if len(a) != 64 {
		t.Fatalf("digest length = %d, want 64", len(a))
	}
	if a != strings.ToLower(a) {
		t.Fatalf("digest not lowercase hex: %q", a)
	}
}

func TestHashRefreshTokenHex_HMACMode(t *testing.T) {
	t.Setenv(HMACEnvKey, strings.Repeat("k", 32))

	keyed := HashRefreshTokenHex("tok")
	if len(keyed) != 64 {
		t.Fatalf("digest length = %d, want 64", len(keyed))
	}
	if keyed == HashSHA256Hex("tok") {
		t.Fatalf("HMAC digest must differ from plain SHA-256")
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, strings.Repeat("k", 32))
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("HMACKeyFromEnv: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length = %d, want 32", len(key))
	}
}
