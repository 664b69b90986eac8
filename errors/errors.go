// Package errors provides typed error handling for the tracer.
//
// This package defines domain-specific error types that enable better error
// classification, debugging, and user feedback. All errors support the standard
// errors.Is() and errors.As() functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error, per the tracer's error taxonomy.
type Kind int

const (
	// Config indicates invalid CLI input, an unknown syscall name, or
	// missing root privilege. Surfaced to the operator; fatal.
	Config Kind = iota
	// HostCapability indicates the kernel artifact is unavailable for this
	// kernel range, or tracepoints are not mountable. Surfaced; fatal.
	HostCapability
	// ProbeLoss indicates a perf ring overrun or a missed entry/exit
	// correlation. Counted internally; never fatal.
	ProbeLoss
	// Store indicates a snapshot export failure or a restore parse
	// failure. Surfaced to the UI; the session may continue or abort.
	Store
	// Programming indicates an internal invariant violation, such as a
	// pending-entry table inconsistency. Logged; the event is dropped.
	Programming
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case HostCapability:
		return "host capability error"
	case ProbeLoss:
		return "probe runtime loss"
	case Store:
		return "store error"
	case Programming:
		return "programming error"
	default:
		return "unknown error"
	}
}

// TracerError represents an error that occurred during tracer operation.
type TracerError struct {
	// Op is the operation that failed (e.g. "schema.Build", "store.Export").
	Op string
	// Syscall is the syscall name, if applicable.
	Syscall string
	// PID is the process ID involved, if applicable.
	PID int
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *TracerError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Syscall != "" {
		msg += fmt.Sprintf("syscall %s: ", e.Syscall)
	}
	if e.PID != 0 {
		msg += fmt.Sprintf("pid %d: ", e.PID)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TracerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is a *TracerError with the same Kind; matching
// against the underlying error is left to errors.Is, which unwraps via
// Unwrap.
func (e *TracerError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*TracerError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new TracerError with the given kind.
func New(kind Kind, op string, detail string) *TracerError {
	return &TracerError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Wrap wraps an error with tracer context.
func Wrap(err error, kind Kind, op string) *TracerError {
	return &TracerError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithPID wraps an error with PID context.
func WrapWithPID(err error, kind Kind, op string, pid int) *TracerError {
	return &TracerError{
		Op:   op,
		PID:  pid,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithSyscall wraps an error with syscall context.
func WrapWithSyscall(err error, kind Kind, op string, syscall string) *TracerError {
	return &TracerError{
		Op:      op,
		Syscall: syscall,
		Err:     err,
		Kind:    kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *TracerError {
	return &TracerError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	var terr *TracerError
	if errors.As(err, &terr) {
		return terr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a TracerError.
func GetKind(err error) (Kind, bool) {
	var terr *TracerError
	if errors.As(err, &terr) {
		return terr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
