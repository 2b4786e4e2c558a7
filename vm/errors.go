package vm

import (
	"errors"
	"fmt"
)

// ErrRealmTerminated is returned by every entry point of a Realm that has
// suffered a fatal abort or has been closed.
var ErrRealmTerminated = errors.New("vm: realm terminated")

// FatalKind classifies unrecoverable engine failures.
type FatalKind uint8

const (
	// FatalOutOfMemory means the heap could not satisfy an allocation.
	FatalOutOfMemory FatalKind = iota + 1
	// FatalInvariant means an internal consistency check failed, such as a
	// dangling cell reference or a cycle in the shape graph.
	FatalInvariant
)

func (k FatalKind) String() string {
	switch k {
	case FatalOutOfMemory:
		return "out of memory"
	case FatalInvariant:
		return "internal invariant violation"
	default:
		return fmt.Sprintf("FatalKind(%d)", k)
	}
}

// FatalError is panicked, never returned, when the engine cannot continue.
// A failing allocator cannot allocate an error object, and a broken
// invariant means the heap can no longer be trusted, so neither is
// delivered to script code.
type FatalError struct {
	Kind    FatalKind
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("vm: fatal: %s: %s", e.Kind, e.Message)
}

func fatalf(kind FatalKind, format string, args ...any) *FatalError {
	return &FatalError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ThrownValue is the error returned when a script throws and no handler
// catches it. Value is exactly what was thrown.
type ThrownValue struct {
	Value Value

	// Message is a rendering of the value made at the time of the throw,
	// usable after the realm has moved on.
	Message string

	// Stack lists "function (file:line:col)" entries, innermost first.
	Stack []string

	stackOverflow bool
}

func (e *ThrownValue) Error() string {
	if e.Message == "" {
		return "uncaught exception"
	}
	return "uncaught " + e.Message
}

// StackOverflow reports whether the value is the engine's call-depth
// RangeError.
func (e *ThrownValue) StackOverflow() bool {
	return e.stackOverflow
}

// InterruptedError is returned when execution was cancelled through
// Realm.Interrupt or a context passed to RunContext.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	if e.Cause == nil {
		return "vm: execution interrupted"
	}
	return "vm: execution interrupted: " + e.Cause.Error()
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// ForeignValueError reports a Value that belongs to a different Realm (or
// to no live cell) being passed into a Realm API.
type ForeignValueError struct {
	Realm string
	Ref   CellRef
}

func (e *ForeignValueError) Error() string {
	return fmt.Sprintf("vm: value %s does not belong to realm %s", e.Ref, e.Realm)
}

// IsThrown reports whether err carries a thrown script value.
func IsThrown(err error) (*ThrownValue, bool) {
	var tv *ThrownValue
	if errors.As(err, &tv) {
		return tv, true
	}
	return nil, false
}
