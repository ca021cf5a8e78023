package token

import "errors"

var (
	// ErrHMACKeyMissing is returned when enforced-HMAC mode finds no key in the environment.
	ErrHMACKeyMissing = errors.New("token hmac key missing")

	// ErrHMACKeyTooShort is returned when the configured key is below the minimum byte length.
	ErrHMACKeyTooShort = errors.New("token hmac key too short")
)
