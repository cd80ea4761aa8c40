package cogs

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied marks a command invocation by a caller lacking the
// required role or ownership. It is reported to the caller directly and
// never logged as a failure.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationError reports malformed user input. The message is shown to
// the invoking user verbatim.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
