// Package service holds the engine's operation layer: conversation
// lifecycle, transcript ingestion and indexing, and query answering.
package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the requested resource does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("resource not found")
	// ErrConversationLocked means the conversation rejects writes until
	// it is unlocked.
	ErrConversationLocked = errors.New("conversation is locked")
)

// ValidationError reports rejected request input.
type ValidationError struct {
	Field   string // Offending field.
	Message string // Why it was rejected.
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RateLimitedError reports a query rejected by the per-user rate limit.
type RateLimitedError struct {
	Reset time.Time // When the current window ends.
}

func (e *RateLimitedError) Error() string {
	return "query rate limit exceeded"
}
