package proxy

import (
	"errors"
	"fmt"
)

// Common proxy errors that can be checked with errors.Is().
var (
	// ErrNoMapping is returned when no routing rule matches a request.
	ErrNoMapping = errors.New("no mapping found")

	// ErrBadGateway is returned when the backend cannot be reached or
	// misbehaves.
	ErrBadGateway = errors.New("bad gateway")
)

// MappingNotFoundError is returned by the router when no mapping exists for
// a (host, path) pair. It is a routing outcome, not a hard failure; the
// request handler turns it into a 404 response.
type MappingNotFoundError struct {
	// Host is the request host with any port suffix stripped.
	Host string

	// Path is the request path that failed to match.
	Path string
}

// Error implements the error interface.
func (e *MappingNotFoundError) Error() string {
	return fmt.Sprintf("no mapping for host %q path %q", e.Host, e.Path)
}

// Is implements error matching for errors.Is().
func (e *MappingNotFoundError) Is(target error) bool {
	return target == ErrNoMapping
}

// BackendError is returned when connecting to, sending to, or reading from
// the resolved backend fails. The request handler turns it into a 502.
type BackendError struct {
	// Addr is the backend address that was targeted.
	Addr string

	// Op is the phase that failed: "connect", "send", or "read".
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed during %s: %v", e.Addr, e.Op, e.Err)
}

// Is implements error matching for errors.Is().
func (e *BackendError) Is(target error) bool {
	return target == ErrBadGateway
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *BackendError) Unwrap() error {
	return e.Err
}
