package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Errors absorbed and logged by the core. None of them crosses a component
// boundary; they are exported so logs, notifications and tests can match them.
var (
	// ErrDiscoveryIncomplete means the control service or one of its
	// characteristics is missing after a successful connection.
	ErrDiscoveryIncomplete = errors.New("discovery incomplete")

	// ErrUnexpectedDisconnect marks a disconnect the client did not request.
	ErrUnexpectedDisconnect = errors.New("unexpected disconnect")
)

// DiscoveryError lists the control attributes that could not be resolved.
type DiscoveryError struct {
	Missing []error
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, m.Error())
	}
	return fmt.Sprintf("%s: %s", ErrDiscoveryIncomplete, strings.Join(parts, "; "))
}

// Unwrap exposes ErrDiscoveryIncomplete and each missing-attribute error.
func (e *DiscoveryError) Unwrap() []error {
	return append([]error{ErrDiscoveryIncomplete}, e.Missing...)
}
