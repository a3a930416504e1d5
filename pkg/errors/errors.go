package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfig            = errors.New("invalid configuration")
	ErrStream            = errors.New("record stream failed")
	ErrBackend           = errors.New("index backend failed")
	ErrNotConfigured     = errors.New("backend not configured")
	ErrAlreadyConfigured = errors.New("backend already configured")
	ErrClosed            = errors.New("backend closed")
	ErrFinalized         = errors.New("build already finalized")
	ErrLocked            = errors.New("index location is locked by another writer")
	ErrInvalidField      = errors.New("invalid field treatment")
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// Wrap tags err with a sentinel so callers can classify it with errors.Is
// while keeping the original chain intact.
func Wrap(sentinel error, err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", sentinel, message, err)
}

// ExitCode maps an error returned from a build to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	if errors.Is(err, ErrConfig) {
		return ExitUsage
	}
	return ExitFailure
}

// Is and As are re-exported so callers importing this package under the
// name errors keep access to the standard helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
