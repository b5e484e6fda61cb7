// Package mesherr defines the Controller's error taxonomy (spec.md §7):
// unknown-node, exhausted-subnet, and validation conditions that the HTTP
// layer translates into status codes. The Runtime does not use it; it
// reports failures as in-band RPC reply strings.
package mesherr

import "errors"

var (
	// ErrUnknownNode is returned by Heartbeat/Deregister for an unrecognized node_id.
	ErrUnknownNode = errors.New("unknown node")
	// ErrExhaustedSubnets is returned by Register when no /24 index remains.
	ErrExhaustedSubnets = errors.New("exhausted subnets")
)

// ValidationError wraps a malformed request (an invalid host_ip, a missing
// hostname, ...).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
