package bridge

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// CodeBlockFilter rewrites the body of a code block during parsing.
//
// The engine calls the filter synchronously once per code block. Every call
// crosses the engine boundary and is markedly slower than letting the engine
// escape the body itself.
type CodeBlockFilter interface {
	FilterCodeBlock(lang string, body *CodeBody) (Replacement, error)
}

// CodeBlockFunc adapts a function to CodeBlockFilter.
type CodeBlockFunc func(lang string, body *CodeBody) (Replacement, error)

// FilterCodeBlock calls f.
func (f CodeBlockFunc) FilterCodeBlock(lang string, body *CodeBody) (Replacement, error) {
	return f(lang, body)
}

// Replacement is the outcome of a code block filter.
type Replacement struct {
	data    []byte
	handled bool
}

// Fallback leaves the block to the engine, which HTML-escapes the body.
var Fallback = Replacement{}

// Replace emits data verbatim in place of the body. An empty slice removes
// the body, which differs from Fallback.
func Replace(data []byte) Replacement {
	return Replacement{data: data, handled: true}
}

// ReplaceString is Replace for text.
func ReplaceString(s string) Replacement {
	return Replacement{data: encodeText(s), handled: true}
}

// Handled reports whether the filter supplied a replacement.
func (r Replacement) Handled() bool {
	return r.handled
}

// CodeBody is a borrowed view of a code block body in engine memory. It is
// only valid for the duration of the filter call that received it.
type CodeBody struct {
	data     []byte
	text     string
	decoded  bool
	released bool
}

// Bytes returns the body without copying. It returns nil once the filter
// call has returned.
func (c *CodeBody) Bytes() []byte {
	if c.released {
		return nil
	}
	return c.data
}

// String decodes the body; the result is computed once and cached.
func (c *CodeBody) String() string {
	if c.released {
		return ""
	}
	if !c.decoded {
		c.text = decodeText(c.data)
		c.decoded = true
	}
	return c.text
}

// Len returns the body length in bytes.
func (c *CodeBody) Len() int {
	if c.released {
		return 0
	}
	return len(c.data)
}

func (c *CodeBody) release() {
	c.data = nil
	c.text = ""
	c.released = true
}

// TrampolineHandle is a filter registered in the engine's function table for
// the duration of one parse call.
type TrampolineHandle struct {
	index   uint32
	filter  CodeBlockFilter
	onError func(error)
	bridge  *Bridge
}

// Index is the function table index handed to the engine.
func (h *TrampolineHandle) Index() uint32 {
	if h == nil {
		return 0
	}
	return h.index
}

// installTrampoline registers filter with the engine.
func (b *Bridge) installTrampoline(filter CodeBlockFilter, onError func(error)) (*TrampolineHandle, error) {
	h := &TrampolineHandle{
		filter:  filter,
		onError: onError,
		bridge:  b,
	}
	idx, err := b.native.AddFunction(h.invoke)
	if err != nil {
		return nil, fmt.Errorf("failed to register code block filter: %w", err)
	}
	h.index = idx
	return h, nil
}

// uninstallTrampoline releases the function table slot held by h.
func (b *Bridge) uninstallTrampoline(h *TrampolineHandle) {
	if h == nil || h.index == 0 {
		return
	}
	b.native.RemoveFunction(h.index)
	h.index = 0
}

// invoke is the CodeBlockHook seen by the engine. Filter failures never
// escape: they are reported and mapped to HookNotHandled.
func (h *TrampolineHandle) invoke(ctx context.Context, langAddr Address, langLen uint32, bodyAddr Address, bodyLen uint32, outAddr Address) int32 {
	b := h.bridge
	mem := b.native.Memory()

	lang := ""
	if langLen > 0 {
		raw, ok := mem.Read(uint32(langAddr), langLen)
		if !ok {
			h.fail(&CallbackError{Err: &MemoryAccessError{Operation: "read-lang", Address: langAddr, Length: langLen}})
			return HookNotHandled
		}
		lang = decodeText(raw)
	}

	raw, ok := mem.Read(uint32(bodyAddr), bodyLen)
	if !ok {
		h.fail(&CallbackError{Lang: lang, Err: &MemoryAccessError{Operation: "read-body", Address: bodyAddr, Length: bodyLen}})
		return HookNotHandled
	}

	body := &CodeBody{data: raw}
	repl, err := h.call(lang, body)
	body.release()
	if err != nil {
		h.fail(err)
		return HookNotHandled
	}

	if !repl.handled {
		return HookNotHandled
	}
	if len(repl.data) == 0 {
		return 0
	}
	if len(repl.data) > math.MaxInt32 {
		h.fail(&CallbackError{Lang: lang, Err: fmt.Errorf("replacement of %d bytes is too large", len(repl.data))})
		return HookNotHandled
	}

	// The engine frees this region after copying it.
	addr, err := b.heap.AllocBytes(ctx, repl.data)
	if err != nil {
		h.fail(&CallbackError{Lang: lang, Err: err})
		return HookNotHandled
	}
	if !mem.WriteUint32Le(uint32(outAddr), uint32(addr)) {
		_ = b.heap.Free(ctx, addr)
		h.fail(&CallbackError{Lang: lang, Err: &MemoryAccessError{Operation: "write-out", Address: outAddr, Length: 4}})
		return HookNotHandled
	}
	return int32(len(repl.data))
}

// call runs the filter, converting errors and panics into a *CallbackError.
func (h *TrampolineHandle) call(lang string, body *CodeBody) (repl Replacement, err error) {
	defer func() {
		if r := recover(); r != nil {
			repl = Fallback
			err = &CallbackError{Lang: lang, Panic: r}
		}
	}()

	repl, err = h.filter.FilterCodeBlock(lang, body)
	if err != nil {
		return Fallback, &CallbackError{Lang: lang, Err: err}
	}
	return repl, nil
}

func (h *TrampolineHandle) fail(err error) {
	h.bridge.logger.Warn("Error in code block filter", zap.Error(err))
	if h.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.bridge.logger.Error("Callback error handler panicked", zap.Any("panic", r))
		}
	}()
	h.onError(err)
}
