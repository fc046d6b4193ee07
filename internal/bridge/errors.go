package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a call is issued while another call on the
	// same Bridge is still in flight (including from inside a code block filter).
	ErrBusy = errors.New("bridge is in use by another call")

	// ErrClosed is returned by calls on a closed Bridge.
	ErrClosed = errors.New("bridge is closed")
)

// AllocationError occurs when the engine's heap cannot satisfy an allocation.
type AllocationError struct {
	Size uint32
	Err  error
}

func (e *AllocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("foreign heap allocation of %d bytes failed: %v", e.Size, e.Err)
	}
	return fmt.Sprintf("foreign heap allocation of %d bytes failed: out of memory", e.Size)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// NativeError is an error record reported by the engine after a call.
type NativeError struct {
	Code    uint32
	Message string
	// Origin names the engine instance that reported the error.
	Origin string
}

func (e *NativeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: engine error %d", e.Origin, e.Code)
	}
	return fmt.Sprintf("%s: %s (code %d)", e.Origin, e.Message, e.Code)
}

// InvalidOptionError occurs when parse options are rejected before any
// engine call is made.
type InvalidOptionError struct {
	Option string
	Value  string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Option, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q", e.Option, e.Value)
}

// CallbackError wraps a failure of a code block filter. It never aborts a
// parse; it is logged and handed to Options.OnCallbackError.
type CallbackError struct {
	Lang  string
	Err   error
	Panic any
}

func (e *CallbackError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("code block filter panicked (lang %q): %v", e.Lang, e.Panic)
	}
	return fmt.Sprintf("code block filter failed (lang %q): %v", e.Lang, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// MemoryAccessError occurs when a range falls outside engine memory.
type MemoryAccessError struct {
	Operation string
	Address   Address
	Length    uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): out of range",
		e.Operation, e.Address, e.Length)
}
