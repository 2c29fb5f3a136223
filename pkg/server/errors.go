package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common session and server error conditions.
var (
	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("server: session not found")

	// ErrSessionAttached is returned when resuming a session that still has a connection.
	ErrSessionAttached = errors.New("server: session already attached")

	// ErrQueueFull is returned when the session work queue is full.
	ErrQueueFull = errors.New("server: session queue full")

	// ErrMaxSessionsReached is returned when the maximum number of sessions is reached.
	ErrMaxSessionsReached = errors.New("server: max sessions reached")

	// ErrNoConnection is returned when sending on a detached session.
	ErrNoConnection = errors.New("server: no connection")
)

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// UpdateError wraps a panic raised by Program.Update or Program.View.
type UpdateError struct {
	SessionID string
	Path      string // Event path, empty for renders outside event handling
	Event     string
	Panic     any
	Stack     []byte
}

// Error returns the error message.
func (e *UpdateError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("server: program panic in session %s: %v", e.SessionID, e.Panic)
	}
	return fmt.Sprintf("server: program panic in session %s, path %q, event %s: %v",
		e.SessionID, e.Path, e.Event, e.Panic)
}
