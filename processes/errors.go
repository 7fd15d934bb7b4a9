package processes

import (
	"errors"
	"fmt"
)

// ErrorType categorizes failures of the embedded server lifecycle.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypePortUnavailable means no free port could be found
	ErrorTypePortUnavailable
	// ErrorTypeServerStartFailure means the server could not bind, launch, or become ready
	ErrorTypeServerStartFailure
	// ErrorTypeServerCrash means the server terminated while it was expected to run
	ErrorTypeServerCrash
	// ErrorTypeShutdownTimeout means the server ignored the stop request and was killed
	ErrorTypeShutdownTimeout
)

// Process exit codes reported for each outcome.
const (
	ExitCodeOK     = 0
	ExitCodeFailed = 1
	ExitCodeForced = 2
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypePortUnavailable:
		return "PortUnavailable"
	case ErrorTypeServerStartFailure:
		return "ServerStartFailure"
	case ErrorTypeServerCrash:
		return "ServerCrash"
	case ErrorTypeShutdownTimeout:
		return "ShutdownTimeout"
	default:
		return "Unknown"
	}
}

// Error represents a structured error with type information
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ErrorTypeUnknown
}

func IsPortUnavailable(err error) bool { return TypeOf(err) == ErrorTypePortUnavailable }
func IsServerStartFailure(err error) bool { return TypeOf(err) == ErrorTypeServerStartFailure }
func IsServerCrash(err error) bool { return TypeOf(err) == ErrorTypeServerCrash }
func IsShutdownTimeout(err error) bool { return TypeOf(err) == ErrorTypeShutdownTimeout }

// ExitCode maps a lifecycle error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeOK
	}
	if IsShutdownTimeout(err) {
		return ExitCodeForced
	}
	return ExitCodeFailed
}
