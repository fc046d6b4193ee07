package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/markdown-wasm-go/api/wasm"
	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
)

// HostFunctionsImpl implements the "md" host module imported by engines.
type HostFunctionsImpl struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(runtime *Runtime, logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-host")),
	}
}

// logMessage is called by engines to log messages.
// Signature: log_message(level, ptr, length)
func (h *HostFunctionsImpl) logMessage(_ context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	mem, ok := NewMemory(mod)
	if !ok {
		return
	}
	msg, ok := mem.ReadString(ptr, length)
	if !ok {
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.String("instance_id", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	logger := h.logger.With(zap.String("instance_id", mod.Name()))
	switch abi.LogLevel(level) {
	case abi.LogDebug:
		logger.Debug(msg)
	case abi.LogWarn:
		logger.Warn(msg)
	case abi.LogError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

// onCodeBlock dispatches a code block to the hook registered in the calling
// instance's function table.
// Signature: on_code_block(fn, lang_ptr, lang_len, body_ptr, body_len, out_ptr) -> i32
func (h *HostFunctionsImpl) onCodeBlock(ctx context.Context, mod api.Module, fn, langPtr, langLen, bodyPtr, bodyLen, outPtr uint32) int32 {
	inst, ok := h.runtime.GetInstance(mod.Name())
	if !ok {
		h.logger.Error("on_code_block called by untracked module",
			zap.String("instance_id", mod.Name()),
		)
		return abi.CodeBlockNotHandled
	}

	hook, ok := inst.table.Get(fn)
	if !ok {
		h.logger.Warn("on_code_block called with unknown function index",
			zap.String("instance_id", mod.Name()),
			zap.Uint32("fn", fn),
		)
		return abi.CodeBlockNotHandled
	}

	return hook(ctx, bridge.Address(langPtr), langLen, bridge.Address(bodyPtr), bodyLen, bridge.Address(outPtr))
}
