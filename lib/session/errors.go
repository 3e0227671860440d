package session

import "errors"

// Registry errors.
var (
	// ErrDuplicateID indicates a session ID is already registered.
	ErrDuplicateID = errors.New("session ID already registered")
	// ErrSessionNotFound indicates a session ID is not registered.
	ErrSessionNotFound = errors.New("session not found")
)
