package errclass

import "fmt"

// RunError is a stable, machine-readable error class.
type RunError struct {
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new RunError with the same Code but a specific message.
func (e *RunError) WithMessage(msg string) *RunError {
	return &RunError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new RunError with a formatted message.
func (e *RunError) WithMessagef(format string, args ...any) *RunError {
	return &RunError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	ErrConfigInvalid  = &RunError{Code: "E_CONFIG_INVALID"}
	ErrLockHeld       = &RunError{Code: "E_LOCK_HELD"}
	ErrLockNotHeld    = &RunError{Code: "E_LOCK_NOT_HELD"}
	ErrProcessExec    = &RunError{Code: "E_PROCESS_EXEC"}
	ErrParse          = &RunError{Code: "E_PARSE"}
	ErrArrayUnhealthy = &RunError{Code: "E_ARRAY_UNHEALTHY"}
	ErrRetryExhausted = &RunError{Code: "E_RETRY_EXHAUSTED"}
	ErrNotifyDelivery = &RunError{Code: "E_NOTIFY_DELIVERY"}
	ErrNameInvalid    = &RunError{Code: "E_NAME_INVALID"}
	ErrPathEscape     = &RunError{Code: "E_PATH_ESCAPE"}
)
