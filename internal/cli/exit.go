package cli

import "fmt"

// ExitError lets a command control the process exit code without forcing
// an extra error message.
type ExitError struct {
	code    int
	message string
}

func Exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *ExitError) Code() int {
	if e == nil {
		return 1
	}
	return e.code
}

func (e *ExitError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}
