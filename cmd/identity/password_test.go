package identity

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	// Small params to keep the test fast; format is what matters here.
	p := Argon2idParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	enc, err := HashPassword("correct horse battery", p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery", enc)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(match) = %v, %v", ok, err)
	}

	ok, err = VerifyPassword("wrong password!!", enc)
	if err != nil {
		t.Fatalf("VerifyPassword(mismatch): %v", err)
	}
	if ok {
		t.Fatalf("mismatching password verified")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short", DefaultArgon2idParams()); !IsInvalidInput(err) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=0,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	}

	for _, enc := range cases {
		if _, err := VerifyPassword("whatever-password", enc); err != ErrInvalidHash {
			t.Fatalf("VerifyPassword(%q): expected ErrInvalidHash, got %v", enc, err)
		}
	}
}
