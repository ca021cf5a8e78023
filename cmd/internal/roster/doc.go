// Package roster holds the shared records the portals operate on: voters,
// candidate profiles, per-candidate field permissions, and per-candidate
// will-vote preferences.
//
// Candidates never mutate voters freely. Direct updates go through the
// permission-scoped service in this package; everything outside the granted
// field set must travel through the edit-request workflow instead.
package roster
