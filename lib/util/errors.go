// Package util provides common utilities for the portal bridge: custom error
// types, the cycle-tolerant JSON encoder, and the log line formatter.
package util

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for session and bridge operations.
var (
	// ErrNotAccepting indicates the bridge is shutting down and refuses
	// new sessions.
	ErrNotAccepting = errors.New("not accepting new sessions")

	// ErrHostNotAllowed indicates a connect request named a host outside
	// the allowlist.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrNoUpstream indicates an upstream write was requested while no
	// upstream connection exists.
	ErrNoUpstream = errors.New("no upstream connection")

	// ErrSessionClosed indicates the session has been torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrUpstreamClosed indicates the MUD server ended the connection.
	ErrUpstreamClosed = errors.New("upstream closed")

	// ErrRecentlyUnreachable indicates the dialer's negative cache is
	// suppressing dials to a host that just failed.
	ErrRecentlyUnreachable = errors.New("host recently unreachable")

	// ErrInflate indicates the MCCP2 inflater could not decode the
	// compressed upstream stream. The stream is unrecoverable.
	ErrInflate = errors.New("compressed stream corrupt")

	// ErrBadControlFrame indicates a client frame opened with '{' but did
	// not parse as JSON.
	ErrBadControlFrame = errors.New("malformed control frame")
)

// DialError wraps an upstream dial failure with the target that failed.
type DialError struct {
	Host string
	Port int
	Err  error
}

// NewDialError creates a new DialError.
func NewDialError(host string, port int, err error) *DialError {
	return &DialError{Host: host, Port: port, Err: err}
}

// Error implements the error interface.
func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s:%d: %v", e.Host, e.Port, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *DialError) Unwrap() error {
	return e.Err
}

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// UserNotice converts an error into the plain-text sentence shown in the
// browser's session window. Notices read like server output, not stack
// traces.
func UserNotice(err error) string {
	if err == nil {
		return ""
	}

	var (
		dialErr *DialError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &dialErr):
		if errors.Is(dialErr.Err, ErrRecentlyUnreachable) {
			return fmt.Sprintf("%s:%d did not answer a moment ago, try again shortly.", dialErr.Host, dialErr.Port)
		}
		return fmt.Sprintf("Unable to reach %s:%d.", dialErr.Host, dialErr.Port)
	case errors.Is(err, ErrUpstreamClosed):
		return "Connection closed by the server."
	case errors.As(err, &netErr) && netErr.Timeout():
		return "The connection timed out."
	case errors.Is(err, ErrInflate):
		return "The server's compressed stream could not be decoded; disconnecting."
	case errors.Is(err, ErrNotAccepting):
		return "The portal is shutting down and is not accepting connections."
	default:
		return fmt.Sprintf("Connection error: %v.", err)
	}
}
