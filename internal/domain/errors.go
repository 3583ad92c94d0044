package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	// ErrNotFound covers lookups of nonexistent entities and operations
	// against sessions that already reached a terminal status.
	ErrNotFound = errors.New("domain: not found")

	// ErrValidation marks a malformed event that is rejected synchronously
	// and never queued or persisted.
	ErrValidation = errors.New("domain: validation failed")

	// ErrIngestionFatal marks a durable event write that failed after the
	// store's own bounded retries. It is the only ingestion failure allowed
	// to propagate: a silently accepted-but-unpersisted event would corrupt
	// the session history.
	ErrIngestionFatal = errors.New("domain: fatal ingestion failure")
)
