// Package device tracks which (user, session) pairs are known logged-in
// clients. A device row is keyed by the owning user and the hash of the
// session refresh token; the raw token is never stored. Registration is
// idempotent and best-effort relative to login, revocation is owner-checked.
//
// Revoking a device removes only the local bookkeeping row. The underlying
// session credential stays valid until it expires or is revoked separately.
package device
