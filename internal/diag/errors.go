// Package diag defines the error taxonomy of the scheduling core and the non-fatal
// diagnostics reported alongside a successful compilation.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a machine-readable error class.
type Code string

// Error classes.
const (
	CodeMalformedGraph            Code = "MALFORMED_GRAPH"
	CodeUnsupportedDistribution   Code = "UNSUPPORTED_DISTRIBUTION"
	CodeDescriptorTooLarge        Code = "DESCRIPTOR_TOO_LARGE"
	CodeInconsistentExecutionMode Code = "INCONSISTENT_EXECUTION_MODE"
	CodeKernelParamsOverflow      Code = "KERNEL_PARAMS_OVERFLOW"
	CodeBarrierCountOverflow      Code = "BARRIER_COUNT_OVERFLOW"
	CodeDeadBarrier               Code = "DEAD_BARRIER"
	CodeTruncatedOrCorruptInput   Code = "TRUNCATED_OR_CORRUPT_INPUT"
	CodeCyclicDependency          Code = "CYCLIC_OR_UNSATISFIABLE_DEPENDENCY"
)

// Sentinel errors, one per code. Use errors.Is to classify an *Error.
var (
	ErrMalformedGraph            = errors.New("malformed graph")
	ErrUnsupportedDistribution   = errors.New("unsupported distribution")
	ErrDescriptorTooLarge        = errors.New("descriptor too large")
	ErrInconsistentExecutionMode = errors.New("inconsistent execution mode")
	ErrKernelParamsOverflow      = errors.New("kernel parameters overflow")
	ErrBarrierCountOverflow      = errors.New("barrier count overflow")
	ErrDeadBarrier               = errors.New("dead barrier")
	ErrTruncatedOrCorruptInput   = errors.New("truncated or corrupt input")
	ErrCyclicDependency          = errors.New("cyclic or unsatisfiable dependency")
)

var sentinels = map[Code]error{
	CodeMalformedGraph:            ErrMalformedGraph,
	CodeUnsupportedDistribution:   ErrUnsupportedDistribution,
	CodeDescriptorTooLarge:        ErrDescriptorTooLarge,
	CodeInconsistentExecutionMode: ErrInconsistentExecutionMode,
	CodeKernelParamsOverflow:      ErrKernelParamsOverflow,
	CodeBarrierCountOverflow:      ErrBarrierCountOverflow,
	CodeDeadBarrier:               ErrDeadBarrier,
	CodeTruncatedOrCorruptInput:   ErrTruncatedOrCorruptInput,
	CodeCyclicDependency:          ErrCyclicDependency,
}

// Well-known detail keys.
const (
	KeyTask      = "task"
	KeyOperation = "operation"
	KeyBarrier   = "barrier"
	KeyOffset    = "offset"
	KeyPort      = "port"
	KeyKind      = "kind"
)

// Error is the error type returned by every component of the core.
type Error struct {
	// Code classifies the failure.
	Code Code
	// Message is a human-readable description.
	Message string
	// Details locates the cause (task index, operation index, barrier id, byte offset).
	Details map[string]any
	// Cause is the underlying error, if any.
	Cause error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (cause: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches the sentinel error of the same code.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Malformed reports a structural violation in the input graph.
func Malformed(format string, args ...any) *Error {
	return New(CodeMalformedGraph, format, args...)
}

// Corrupt reports an input buffer that cannot be decoded at the given byte offset.
func Corrupt(offset int64, format string, args ...any) *Error {
	return New(CodeTruncatedOrCorruptInput, format, args...).WithDetail(KeyOffset, offset)
}
