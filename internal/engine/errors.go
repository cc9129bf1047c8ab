package engine

import (
	"errors"
	"fmt"
)

// Error represents an error raised by the engine's public surface or its loop.
//
// Error categories:
//   - Invalid argument: absent or out-of-range input, returned to the caller
//   - Handler failure: a callback returned an error or panicked during publish
//   - Loop fatal: an unexpected failure outside the per-event isolation boundary
//   - Already started: Run was called on an engine that is or was running
//   - Cycle: callbacks kept publishing from inside callbacks past the limit
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation that failed (e.g. "register", "schedule once at").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates an absent or out-of-range argument.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeHandlerFailure indicates a callback failed while handling an event.
	ErrCodeHandlerFailure ErrorCode = "HANDLER_FAILURE"

	// ErrCodeLoopFatal indicates the engine loop terminated on an unexpected failure.
	ErrCodeLoopFatal ErrorCode = "LOOP_FATAL"

	// ErrCodeAlreadyStarted indicates Run was called more than once.
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"

	// ErrCodeCycle indicates nested publishes exceeded the depth limit.
	ErrCodeCycle ErrorCode = "CYCLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func invalidArgument(op, message string) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Op: op, Message: message}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsInvalidArgument returns true if err is an invalid-argument error.
// Uses errors.As to handle wrapped errors.
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsHandlerFailure returns true if err is a handler-failure error.
func IsHandlerFailure(err error) bool {
	return hasCode(err, ErrCodeHandlerFailure)
}

// IsLoopFatal returns true if err reports a loop-fatal condition.
func IsLoopFatal(err error) bool {
	return hasCode(err, ErrCodeLoopFatal)
}

// IsAlreadyStarted returns true if err reports a second Run on the same engine.
func IsAlreadyStarted(err error) bool {
	return hasCode(err, ErrCodeAlreadyStarted)
}

// IsCycle returns true if err reports a publish cycle.
func IsCycle(err error) bool {
	return hasCode(err, ErrCodeCycle)
}
