package memory

import "errors"

// Sentinel errors for the engine's error taxonomy. Callers match them with
// errors.Is; the tool layer maps each one to a machine-readable error kind.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrOwnership means the record exists but belongs to a different user.
	// Never retried; the store audit-logs every occurrence.
	ErrOwnership = errors.New("memory: access denied")

	// ErrValidation means a record failed its kind's schema validation.
	ErrValidation = errors.New("memory: validation failed")
)
