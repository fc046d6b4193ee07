package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/markdown-wasm-go/api/wasm"
	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
)

// InstanceManager creates and manages engine instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl

	hostOnce sync.Once
	hostErr  error
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, generates UUID).
	InstanceID string

	// FunctionTableSize bounds the number of registered code block hooks.
	// Default: 16.
	FunctionTableSize int
}

// Instance is an instantiated engine module. It implements bridge.Native and
// is not safe for concurrent use.
type Instance struct {
	module  api.Module
	memory  *Memory
	table   *bridge.FunctionTable
	manager *InstanceManager

	// Instance metadata.
	ID         string
	ModuleName string
	CreatedAt  int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	closed atomic.Bool
}

var _ bridge.Native = (*Instance)(nil)

// Instantiate creates a new instance from a compiled module.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.ActiveInstances() >= limit {
		return nil, &TooManyInstancesError{Limit: limit}
	}

	if err := m.ensureHostModule(ctx); err != nil {
		return nil, err
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateUUID()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	// Reactor modules are initialised by _initialize; it is skipped when
	// not exported.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(abi.ExportInitialize)

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	mem, ok := NewMemory(module)
	if !ok {
		_ = module.Close(ctx)
		return nil, &MissingMemoryError{ModuleName: config.ModuleName}
	}

	exports, err := m.cacheExportedFunctions(module, config.ModuleName)
	if err != nil {
		_ = module.Close(ctx)
		return nil, err
	}

	tableSize := config.FunctionTableSize
	if tableSize == 0 {
		tableSize = 16
	}

	instance := &Instance{
		module:     module,
		memory:     mem,
		table:      bridge.NewFunctionTable(tableSize),
		manager:    m,
		ID:         instanceID,
		ModuleName: config.ModuleName,
		CreatedAt:  time.Now().Unix(),
		exports:    exports,
	}

	// Tracking also makes the instance reachable from on_code_block.
	m.runtime.StoreInstance(instance)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
		zap.Uint32("memory_bytes", mem.Size()),
	)

	return instance, nil
}

// ensureHostModule instantiates the "md" host module once per runtime.
func (m *InstanceManager) ensureHostModule(ctx context.Context) error {
	m.hostOnce.Do(func() {
		builder := m.runtime.runtime.NewHostModuleBuilder(abi.HostModule)
		m.exportHostFunctions(builder)
		if _, err := builder.Instantiate(ctx); err != nil {
			m.hostErr = &HostFunctionError{FunctionName: abi.HostModule, Err: err}
		}
	})
	return m.hostErr
}

// cacheExportedFunctions resolves the engine ABI up front so a malformed
// engine is rejected at instantiation rather than on first use.
func (m *InstanceManager) cacheExportedFunctions(module api.Module, moduleName string) (map[string]api.Function, error) {
	exports := make(map[string]api.Function)

	for _, name := range abi.RequiredExports {
		fn := module.ExportedFunction(name)
		if fn == nil {
			return nil, &FunctionNotFoundError{ModuleName: moduleName, FunctionName: name}
		}
		exports[name] = fn
	}
	for _, name := range abi.OptionalExports {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	return exports, nil
}

// exportHostFunctions registers Go functions for import by engines.
func (m *InstanceManager) exportHostFunctions(builder wazero.HostModuleBuilder) {
	impl := m.hostFuncs

	builder.NewFunctionBuilder().
		WithFunc(impl.logMessage).
		WithParameterNames("level", "ptr", "length").
		Export(abi.HostLogMessage)

	builder.NewFunctionBuilder().
		WithFunc(impl.onCodeBlock).
		WithParameterNames("fn", "lang_ptr", "lang_len", "body_ptr", "body_len", "out_ptr").
		Export(abi.HostOnCodeBlock)
}

// Name implements bridge.Native.
func (i *Instance) Name() string {
	return i.ModuleName + "#" + i.ID
}

// Memory implements bridge.Native.
func (i *Instance) Memory() bridge.Memory {
	return i.memory
}

// Realloc implements bridge.Native.
func (i *Instance) Realloc(ctx context.Context, ptr bridge.Address, size uint32) (bridge.Address, error) {
	res, err := i.call1(ctx, abi.ExportRealloc, uint64(ptr), uint64(size))
	if err != nil {
		return 0, err
	}
	return bridge.Address(api.DecodeU32(res)), nil
}

// Free implements bridge.Native.
func (i *Instance) Free(ctx context.Context, ptr bridge.Address) error {
	_, err := i.call(ctx, abi.ExportFree, uint64(ptr))
	return err
}

// ParseUTF8 implements bridge.Native.
func (i *Instance) ParseUTF8(ctx context.Context, req *bridge.ParseRequest) (uint32, error) {
	name := abi.ExportParseUTF8
	if req.Formatter == bridge.FormatterJSON {
		name = abi.ExportParseUTF8JSON
	}
	res, err := i.call1(ctx, name,
		uint64(req.Input),
		uint64(req.InputLen),
		uint64(req.ParseFlags),
		uint64(req.OutputFlags),
		uint64(req.Out),
		uint64(req.Callback),
	)
	if err != nil {
		return 0, err
	}
	n := api.DecodeI32(res)
	if n < 0 {
		return 0, nil
	}
	return uint32(n), nil
}

// SupportsFormatter implements bridge.Native.
func (i *Instance) SupportsFormatter(f bridge.Formatter) bool {
	switch f {
	case bridge.FormatterHTML:
		return true
	case bridge.FormatterJSON:
		_, ok := i.exports[abi.ExportParseUTF8JSON]
		return ok
	}
	return false
}

// Version implements bridge.Native.
func (i *Instance) Version(ctx context.Context, out bridge.Address) (uint32, error) {
	res, err := i.call1(ctx, abi.ExportVersion, uint64(out))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res), nil
}

// ErrorCode implements bridge.Native.
func (i *Instance) ErrorCode(ctx context.Context) (uint32, error) {
	res, err := i.call1(ctx, abi.ExportErrGetCode)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res), nil
}

// ErrorMessage implements bridge.Native.
func (i *Instance) ErrorMessage(ctx context.Context) (bridge.Address, error) {
	res, err := i.call1(ctx, abi.ExportErrGetMsg)
	if err != nil {
		return 0, err
	}
	return bridge.Address(api.DecodeU32(res)), nil
}

// ClearError implements bridge.Native.
func (i *Instance) ClearError(ctx context.Context) error {
	_, err := i.call(ctx, abi.ExportErrClear)
	return err
}

// AddFunction implements bridge.Native.
func (i *Instance) AddFunction(hook bridge.CodeBlockHook) (uint32, error) {
	return i.table.Add(hook)
}

// RemoveFunction implements bridge.Native.
func (i *Instance) RemoveFunction(index uint32) {
	i.table.Remove(index)
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	i.manager.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}

func (i *Instance) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.closed.Load() {
		return nil, bridge.ErrClosed
	}
	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.ModuleName, FunctionName: name}
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, &CallError{InstanceID: i.ID, FunctionName: name, Err: err}
	}
	return res, nil
}

// call1 is call for exports returning a single i32.
func (i *Instance) call1(ctx context.Context, name string, params ...uint64) (uint64, error) {
	res, err := i.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, &CallError{InstanceID: i.ID, FunctionName: name, Err: fmt.Errorf("expected 1 result, got %d", len(res))}
	}
	return res[0], nil
}

// generateUUID generates a unique instance ID.
func generateUUID() string {
	return "inst-" + uuid.NewString()
}
