package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers every failed credential, token, or liveness
	// check. Callers must not attach detail distinguishing which check
	// failed; the uniform value is what reaches the wire.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict reports a duplicate email on sign-up.
	ErrConflict = errors.New("conflict")
)

// InfraError marks a store or cache being unreachable, including timeouts.
// Guards still answer 401 on it (fail-closed), but it is logged separately
// so operators can tell outages from real auth failures.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// NewInfraError wraps err with the failing operation name.
func NewInfraError(op string, err error) error {
	return &InfraError{Op: op, Err: err}
}

// IsInfra reports whether err is (or wraps) an InfraError.
func IsInfra(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}
