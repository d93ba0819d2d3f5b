package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks configuration or request errors rejected before any upstream call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTemporary marks recoverable upstream failures (timeouts, 5xx, open circuit).
	ErrTemporary = errors.New("temporary failure")
	// ErrContractViolation marks generative output that does not match the expected schema.
	ErrContractViolation = errors.New("contract violation")
	// ErrNoResults is returned when every branch of the active strategy failed.
	ErrNoResults = errors.New("no results")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
