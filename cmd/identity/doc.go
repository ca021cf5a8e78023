// Package identity owns users, credentials, and refresh-token sessions.
//
// It is the persistence boundary for everything the rest of the server
// treats as "who is calling": user rows with a coarse role, Argon2id
// password hashes, and opaque refresh-token sessions stored only as
// digests. Two trust levels are exposed as separate interfaces:
// ScopedStore for caller-owned reads and PrivilegedStore for the
// authorization-bypassing paths (role resolution, admin operations,
// bootstrap/rollback).
package identity
