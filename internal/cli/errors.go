package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/models"
)

// Exit codes.
const (
	ExitCodeSuccess   = 0
	ExitCodeFailure   = 1
	ExitCodeUsage     = 2
	ExitCodeStopped   = 3
	ExitCodeUnreached = 4
)

// ExitError carries a process exit code. Printed is set when the command
// already reported the error to the operator.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return fmt.Sprintf("exit status %d", e.code())
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) code() int {
	if e == nil {
		return ExitCodeSuccess
	}
	return e.Code
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

func usageError(cmd *cobra.Command, message string) error {
	return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("%s (see %s --help)", message, cmd.CommandPath())}
}

// exitForError maps domain errors onto exit codes.
func exitForError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	var precondition *models.PreconditionError
	switch {
	case errors.As(err, &precondition):
		return &ExitError{Code: ExitCodeUsage, Err: err}
	case models.IsTransport(err):
		return &ExitError{Code: ExitCodeUnreached, Err: err}
	}
	return &ExitError{Code: ExitCodeFailure, Err: err}
}
