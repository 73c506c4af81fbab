package usecase

import (
	"errors"
	"fmt"
)

// ValidationError is a job-level input problem. The job is rejected before
// any stage runs and nothing is written.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid job: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// StageError is an encoding engine failure. It aborts the whole chain.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
