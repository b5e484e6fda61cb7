// Package cliexit distinguishes a command's argument-parsing failures from
// its downstream initialization failures, so the three cmd/ binaries can
// honor spec.md's process exit code contract: 0 on clean shutdown, 1 on
// fatal init failure, 2 on argument error.
package cliexit

import "errors"

// InitError wraps an error returned from a cobra command's RunE. Cobra's
// own flag-parsing errors reach main() unwrapped, so wrapping every RunE
// failure in InitError lets main tell the two apart without inspecting
// cobra/pflag internals.
type InitError struct {
	err error
}

// Init wraps err for RunE to return, or returns nil unchanged.
func Init(err error) error {
	if err == nil {
		return nil
	}
	return &InitError{err: err}
}

func (e *InitError) Error() string { return e.err.Error() }
func (e *InitError) Unwrap() error { return e.err }

// Code maps err to the process exit code spec.md assigns it: 0 for nil, 1
// for a wrapped init failure, 2 for everything else (cobra's own
// argument/flag-parsing errors).
func Code(err error) int {
	if err == nil {
		return 0
	}
	var initErr *InitError
	if errors.As(err, &initErr) {
		return 1
	}
	return 2
}
