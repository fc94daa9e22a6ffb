// Package session generates identifiers for a script run and its fork
// branches, used for log correlation and cancellation scoping
// (spec.md §4.5/§9: each fork branch gets a distinct, traceable identity).
package session

import "github.com/google/uuid"

// NewID returns a fresh session identifier for a top-level `orchid run`
// invocation.
func NewID() string {
	return uuid.NewString()
}

// NewTaskID returns a fresh identifier for one fork branch, scoped under a
// parent session id for log correlation.
func NewTaskID(sessionID string) string {
	return sessionID + "/" + uuid.NewString()
}

// Short returns the first 8 characters of an id, for compact log lines.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
