package pipeline

import (
	"errors"
	"fmt"
)

// ExecutionErrorCode marks an on-chain execution failure: the network
// accepted the message and produced a transaction, but the contract's own
// logic exited non-zero. It is the only failure class that triggers a
// diagnostic replay.
const ExecutionErrorCode = 414

// ErrorClass separates the failure surfaces of one call.
type ErrorClass int

const (
	// ClassValidation covers malformed input caught before any network
	// interaction.
	ClassValidation ErrorClass = iota
	// ClassStateFetch covers unreachable target or config accounts.
	ClassStateFetch
	// ClassTransport covers submission or confirmation transport failures,
	// including timeouts.
	ClassTransport
	// ClassExecution covers on-chain execution failures.
	ClassExecution
	// ClassReplay covers failures of the replay machinery itself, layered
	// on top of the execution failure they were diagnosing.
	ClassReplay
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassStateFetch:
		return "state-fetch"
	case ClassTransport:
		return "transport"
	case ClassExecution:
		return "execution"
	case ClassReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// CallError is a terminal call failure. Code carries the numeric error code
// when one exists; ExitCode carries the VM exit code for execution failures.
type CallError struct {
	Class    ErrorClass
	Code     int32
	ExitCode int32
	Message  string
	Err      error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Class, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsExecutionFailure reports whether err is the on-chain execution failure
// class that arms the replay path.
func IsExecutionFailure(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Class == ClassExecution && ce.Code == ExecutionErrorCode
}

func validationError(format string, args ...interface{}) *CallError {
	return &CallError{Class: ClassValidation, Message: fmt.Sprintf(format, args...)}
}

func stateFetchError(err error, format string, args ...interface{}) *CallError {
	return &CallError{Class: ClassStateFetch, Message: fmt.Sprintf(format, args...), Err: err}
}

func transportError(err error, format string, args ...interface{}) *CallError {
	return &CallError{Class: ClassTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

func executionError(exitCode int32, format string, args ...interface{}) *CallError {
	return &CallError{
		Class:    ClassExecution,
		Code:     ExecutionErrorCode,
		ExitCode: exitCode,
		Message:  fmt.Sprintf(format, args...),
	}
}

// replayError layers a replay-machinery failure on top of the original
// execution failure so neither is dropped.
func replayError(original *CallError, err error, format string, args ...interface{}) *CallError {
	return &CallError{
		Class:   ClassReplay,
		Code:    original.Code,
		Message: fmt.Sprintf(format, args...) + " (while diagnosing: " + original.Message + ")",
		Err:     err,
	}
}
