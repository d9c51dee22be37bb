package engine

import "errors"

var (
	// ErrEmptyUser rejects a save with no user id.
	ErrEmptyUser = errors.New("user id required")

	// ErrSessionNotFound indicates a session with zero live records. A
	// normal result for stale ids, not a crash condition.
	ErrSessionNotFound = errors.New("session not found")
)
