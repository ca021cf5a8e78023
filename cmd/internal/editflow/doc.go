// Package editflow implements the request/approve/reject workflow that lets
// candidates propose voter field edits for admin disposition.
//
// Each request is a state machine: pending -> approved or pending -> rejected,
// both terminal. At most one pending request exists per (voter, candidate,
// field); a repeat submission supersedes the pending row in place. Approval
// applies the proposed value to the voter and marks the request in a single
// unit, so no state exists where one happened without the other.
package editflow
