// Package bridge moves bytes, addresses, error state and callbacks between Go
// and a markdown engine living in its own linear memory.
//
// The engine may be a WebAssembly module hosted by wazero (internal/wasm) or
// the in-process reference engine (internal/refengine). Both expose the same
// ABI, captured by the Native interface.
//
// A Bridge is not safe for concurrent use. The engine keeps a single error
// record and a single reusable output buffer, and the Bridge keeps a single
// scratch slot; a second call in flight would corrupt the first one's result.
// Use Guarded, or one Bridge per goroutine.
package bridge

import (
	"context"
)

// Address is an offset into the engine's linear memory. It is not a Go
// pointer and must only be handed back to the engine or used with Memory.
// Address 0 is NULL.
type Address uint32

// Memory is the view of linear memory the bridge needs.
// wazero's api.Memory satisfies it.
//
// Slices returned by Read alias engine memory and are invalidated when the
// memory grows or the engine reuses the region.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset, v uint32) bool
}

// Formatter selects the engine's output formatter.
type Formatter uint32

const (
	FormatterHTML Formatter = iota
	// FormatterJSON is experimental; engines report support through
	// Native.SupportsFormatter.
	FormatterJSON
)

// ParseRequest is the argument block of one parseUTF8 call. The engine writes
// the address of its result into Out and returns the result length.
type ParseRequest struct {
	Input       Address
	InputLen    uint32
	ParseFlags  uint32
	OutputFlags uint32
	Out         Address
	// Callback is a FunctionTable index, 0 when no code block hook is installed.
	Callback  uint32
	Formatter Formatter
}

// CodeBlockHook is the engine-callable shape of a code block filter.
// The engine passes the language tag and body ranges plus the address of an
// out slot, and interprets the result as:
//
//	-1  not handled; the engine HTML-escapes the body itself
//	 0  replace the body with nothing
//	>0  length of a replacement whose address was written to outAddr;
//	    the engine frees that region after copying it
type CodeBlockHook func(ctx context.Context, langAddr Address, langLen uint32, bodyAddr Address, bodyLen uint32, outAddr Address) int32

// Native is the ABI exported by a markdown engine.
type Native interface {
	// Name identifies the engine instance in errors and logs.
	Name() string

	Memory() Memory

	// Realloc behaves like C realloc; Realloc(0, n) allocates. A zero
	// address signals exhaustion.
	Realloc(ctx context.Context, ptr Address, size uint32) (Address, error)
	Free(ctx context.Context, ptr Address) error

	ParseUTF8(ctx context.Context, req *ParseRequest) (uint32, error)
	SupportsFormatter(f Formatter) bool

	// Version writes the address of the engine version string into out and
	// returns its length.
	Version(ctx context.Context, out Address) (uint32, error)

	ErrorCode(ctx context.Context) (uint32, error)
	ErrorMessage(ctx context.Context) (Address, error)
	ClearError(ctx context.Context) error

	// AddFunction registers hook in the engine's function table and returns
	// its index. RemoveFunction releases the slot.
	AddFunction(hook CodeBlockHook) (uint32, error)
	RemoveFunction(index uint32)
}

// Error codes reported through the engine's error record.
const (
	ErrCodeNone          uint32 = 0
	ErrCodeParse         uint32 = 1
	ErrCodeOutputFlags   uint32 = 2
	ErrCodeInputTooLarge uint32 = 3
)

// HookNotHandled is the CodeBlockHook result asking the engine to escape the body.
const HookNotHandled int32 = -1
