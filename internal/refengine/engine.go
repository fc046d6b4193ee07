// Package refengine is an in-process markdown engine with the same ABI as the
// WebAssembly engines. It owns a private linear memory and heap, renders with
// goldmark, and calls code block hooks through a function table, so the
// bridge can be exercised end to end without a compiled module.
package refengine

import (
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Name is the engine name registered by the engine manager.
const Name = "reference"

// Version is reported through the version export.
const Version = "refengine 1.2.0 (goldmark)"

// Config sizes the engine.
type Config struct {
	// InitialPages is the memory size at creation, in 64KiB pages.
	InitialPages uint32
	// MaxPages caps memory growth. Allocations beyond it fail.
	MaxPages uint32
	// MaxInputBytes rejects larger inputs with ErrCodeInputTooLarge. 0 disables the check.
	MaxInputBytes uint32
	// JSONFormatter enables the experimental JSON output.
	JSONFormatter bool
	// FunctionTableSize bounds the number of registered hooks.
	FunctionTableSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		InitialPages:      2,
		MaxPages:          256,
		FunctionTableSize: 64,
	}
}

type convKey struct {
	parseFlags  uint32
	outputFlags uint32
}

// callState is set while parseUTF8 runs.
type callState struct {
	ctx   context.Context
	input bridge.Address
	hook  bridge.CodeBlockHook
}

// Engine implements bridge.Native. It is not safe for concurrent use.
type Engine struct {
	cfg    *Config
	logger *zap.Logger

	mem   *linearMemory
	heap  *heap
	table *bridge.FunctionTable

	errCode uint32
	errMsg  uint32

	out     *regionBuffer // reused across parse calls
	tmp     *regionBuffer // code block bodies handed to hooks
	hookOut uint32        // out slot for hook replacements

	versionAddr uint32
	versionLen  uint32

	html   map[convKey]goldmark.Markdown
	json   map[uint32]goldmark.Markdown
	call   *callState
	closed bool
}

// New creates a reference engine. A nil config uses DefaultConfig.
func New(cfg *Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.InitialPages == 0 {
		cfg.InitialPages = 1
	}
	if cfg.MaxPages < cfg.InitialPages {
		return nil, fmt.Errorf("max pages %d is below initial pages %d", cfg.MaxPages, cfg.InitialPages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mem := newLinearMemory(cfg.InitialPages, cfg.MaxPages)
	e := &Engine{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "refengine")),
		mem:    mem,
		heap:   newHeap(mem),
		table:  bridge.NewFunctionTable(cfg.FunctionTableSize),
		html:   make(map[convKey]goldmark.Markdown),
		json:   make(map[uint32]goldmark.Markdown),
	}
	e.out = &regionBuffer{heap: e.heap}
	e.tmp = &regionBuffer{heap: e.heap}

	// Static data: the version string and the hook out slot.
	e.hookOut = e.heap.malloc(4)
	e.versionAddr = e.heap.malloc(uint32(len(Version)))
	if e.hookOut == 0 || e.versionAddr == 0 {
		return nil, fmt.Errorf("memory too small for static data")
	}
	e.mem.Write(e.versionAddr, []byte(Version))
	e.versionLen = uint32(len(Version))

	e.logger.Debug("Reference engine created",
		zap.Uint32("initial_pages", cfg.InitialPages),
		zap.Uint32("max_pages", cfg.MaxPages),
	)
	return e, nil
}

// Name implements bridge.Native.
func (e *Engine) Name() string {
	return Name
}

// Memory implements bridge.Native.
func (e *Engine) Memory() bridge.Memory {
	return e.mem
}

// Realloc implements bridge.Native.
func (e *Engine) Realloc(_ context.Context, ptr bridge.Address, size uint32) (bridge.Address, error) {
	if e.closed {
		return 0, bridge.ErrClosed
	}
	return bridge.Address(e.heap.realloc(uint32(ptr), size)), nil
}

// Free implements bridge.Native. Freeing an address that is not a live block
// is an error rather than heap corruption.
func (e *Engine) Free(_ context.Context, ptr bridge.Address) error {
	if e.closed {
		return bridge.ErrClosed
	}
	if ptr == 0 {
		return nil
	}
	if !e.heap.release(uint32(ptr)) {
		return fmt.Errorf("free of unallocated address %d", ptr)
	}
	return nil
}

// SupportsFormatter implements bridge.Native.
func (e *Engine) SupportsFormatter(f bridge.Formatter) bool {
	switch f {
	case bridge.FormatterHTML:
		return true
	case bridge.FormatterJSON:
		return e.cfg.JSONFormatter
	}
	return false
}

// ParseUTF8 implements bridge.Native.
func (e *Engine) ParseUTF8(ctx context.Context, req *bridge.ParseRequest) (uint32, error) {
	if e.closed {
		return 0, bridge.ErrClosed
	}
	if !e.mem.WriteUint32Le(uint32(req.Out), 0) {
		return 0, fmt.Errorf("out slot %d outside memory", req.Out)
	}
	input, ok := e.mem.Read(uint32(req.Input), req.InputLen)
	if !ok {
		return 0, fmt.Errorf("input range %d+%d outside memory", req.Input, req.InputLen)
	}

	if e.cfg.MaxInputBytes > 0 && req.InputLen > e.cfg.MaxInputBytes {
		e.setError(bridge.ErrCodeInputTooLarge, fmt.Sprintf("input too large (%d > %d bytes)", req.InputLen, e.cfg.MaxInputBytes))
		return 0, nil
	}

	// Goldmark keeps references into the source, and hooks may grow memory.
	source := make([]byte, len(input))
	copy(source, input)

	state := &callState{ctx: ctx, input: req.Input}
	if req.Callback != 0 {
		hook, ok := e.table.Get(req.Callback)
		if !ok {
			return 0, fmt.Errorf("no function at table index %d", req.Callback)
		}
		state.hook = hook
	}
	e.call = state
	defer func() { e.call = nil }()

	e.out.reset()
	if err := e.out.reserve(req.InputLen * 2); err != nil {
		e.setError(bridge.ErrCodeParse, "md parser error")
		return 0, nil
	}

	var err error
	switch {
	case req.Formatter == bridge.FormatterJSON:
		if !e.cfg.JSONFormatter {
			e.setError(bridge.ErrCodeOutputFlags, "json formatter not available")
			return 0, nil
		}
		err = e.renderJSON(source, req.ParseFlags, e.out)
	case req.OutputFlags&uint32(markdown.OutputHTML) != 0:
		err = e.converter(req.ParseFlags, req.OutputFlags).Convert(source, e.out)
	default:
		e.setError(bridge.ErrCodeOutputFlags, "no output format set in output flags")
		return 0, nil
	}
	if err != nil {
		e.logger.Debug("Render failed", zap.Error(err))
		e.setError(bridge.ErrCodeParse, "md parser error")
		return 0, nil
	}

	e.mem.WriteUint32Le(uint32(req.Out), e.out.addr)
	return e.out.len, nil
}

// Version implements bridge.Native.
func (e *Engine) Version(_ context.Context, out bridge.Address) (uint32, error) {
	if e.closed {
		return 0, bridge.ErrClosed
	}
	if !e.mem.WriteUint32Le(uint32(out), e.versionAddr) {
		return 0, fmt.Errorf("out slot %d outside memory", out)
	}
	return e.versionLen, nil
}

// ErrorCode implements bridge.Native.
func (e *Engine) ErrorCode(context.Context) (uint32, error) {
	return e.errCode, nil
}

// ErrorMessage implements bridge.Native. The message is NUL-terminated.
func (e *Engine) ErrorMessage(context.Context) (bridge.Address, error) {
	return bridge.Address(e.errMsg), nil
}

// ClearError implements bridge.Native.
func (e *Engine) ClearError(context.Context) error {
	e.clearError()
	return nil
}

// AddFunction implements bridge.Native.
func (e *Engine) AddFunction(hook bridge.CodeBlockHook) (uint32, error) {
	return e.table.Add(hook)
}

// RemoveFunction implements bridge.Native.
func (e *Engine) RemoveFunction(index uint32) {
	e.table.Remove(index)
}

// LiveAllocations returns the number of live heap blocks, including the
// engine's own static data and output buffers.
func (e *Engine) LiveAllocations() int {
	return e.heap.liveBlocks()
}

// MemoryPages returns the current memory size in pages.
func (e *Engine) MemoryPages() uint32 {
	return e.mem.pages()
}

// Close drops the engine memory.
func (e *Engine) Close(context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.mem.buf = nil
	e.html = nil
	e.json = nil
	return nil
}

func (e *Engine) setError(code uint32, msg string) {
	e.clearError()
	e.errCode = code
	addr := e.heap.malloc(uint32(len(msg)) + 1)
	if addr == 0 {
		e.logger.Warn("No memory for error message", zap.String("message", msg))
		return
	}
	e.mem.Write(addr, append([]byte(msg), 0))
	e.errMsg = addr
}

func (e *Engine) clearError() {
	if e.errMsg != 0 {
		e.heap.release(e.errMsg)
	}
	e.errCode = bridge.ErrCodeNone
	e.errMsg = 0
}

var errOutOfMemory = fmt.Errorf("out of memory")

// regionBuffer is a growable heap region used as an io.Writer.
type regionBuffer struct {
	heap     *heap
	addr     uint32
	capacity uint32
	len      uint32
}

func (b *regionBuffer) reset() {
	b.len = 0
}

func (b *regionBuffer) reserve(n uint32) error {
	if n < 64 {
		n = 64
	}
	need := uint64(b.len) + uint64(n)
	if need <= uint64(b.capacity) {
		return nil
	}
	newCap := uint64(b.capacity) * 2
	if newCap < need {
		newCap = need
	}
	if newCap > 0xFFFFFFFF {
		return errOutOfMemory
	}
	addr := b.heap.realloc(b.addr, uint32(newCap))
	if addr == 0 {
		return errOutOfMemory
	}
	b.addr = addr
	b.capacity = uint32(newCap)
	return nil
}

func (b *regionBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(b.len)+uint64(len(p)) > uint64(b.capacity) {
		if err := b.reserve(uint32(len(p))); err != nil {
			return 0, err
		}
	}
	copy(b.heap.mem.buf[b.addr+b.len:], p)
	b.len += uint32(len(p))
	return len(p), nil
}
