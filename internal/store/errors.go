package store

import "errors"

// Validation errors are rejected before any network call and surfaced as
// transient user-facing notices, never logged as system failures.
var (
	ErrSelfChat     = errors.New("cannot create a chat with yourself")
	ErrRoomLimit    = errors.New("room limit exceeded")
	ErrRoomExists   = errors.New("room already exists")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrNoHistory    = errors.New("no more history")
)
