package visa

import (
	"fmt"
)

// CommunicationError is returned when the bus fails to carry a command or
// a reply.  It is never retried.
type CommunicationError struct {
	Op       string
	Resource string
	Cmd      string
	Err      error
}

func (e *CommunicationError) Error() string {
	if e.Cmd != "" {
		return fmt.Sprintf("visa: %s %q on %s: %v", e.Op, e.Cmd, e.Resource, e.Err)
	}
	return fmt.Sprintf("visa: %s on %s: %v", e.Op, e.Resource, e.Err)
}

// Unwrap returns the transport error
func (e *CommunicationError) Unwrap() error { return e.Err }

// Cause returns the transport error, for github.com/pkg/errors.Cause
func (e *CommunicationError) Cause() error { return e.Err }

// ParseError is returned when a reply that should be numeric is not
type ParseError struct {
	Resource string
	Cmd      string
	Reply    string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("visa: cannot parse reply %q to %q from %s as numbers: %v", e.Reply, e.Cmd, e.Resource, e.Err)
	}
	return fmt.Sprintf("visa: cannot parse reply %q as numbers: %v", e.Reply, e.Err)
}

// Unwrap returns the underlying strconv error
func (e *ParseError) Unwrap() error { return e.Err }
