package wasm

import (
	"errors"
	"fmt"
)

var (
	errUnknownCompression = errors.New("unknown compression")
	errModuleTooLarge     = errors.New("module exceeds size limit")
	errNotWasm            = errors.New("not a WebAssembly binary")
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when a required export is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// MissingMemoryError occurs when an engine module does not export its memory
type MissingMemoryError struct {
	ModuleName string
}

func (e *MissingMemoryError) Error() string {
	return fmt.Sprintf("module '%s' does not export a memory", e.ModuleName)
}

// CallError occurs when an exported engine function traps or fails
type CallError struct {
	InstanceID   string
	FunctionName string
	Err          error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call to '%s' failed (instance: %s): %v", e.FunctionName, e.InstanceID, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// HostFunctionError occurs when host function execution fails
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// TooManyInstancesError occurs when the instance limit is reached
type TooManyInstancesError struct {
	Limit int
}

func (e *TooManyInstancesError) Error() string {
	return fmt.Sprintf("instance limit reached (%d active)", e.Limit)
}

// DecompressionError occurs when a packed engine binary cannot be unpacked
type DecompressionError struct {
	ModuleName  string
	Compression Compression
	Err         error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("failed to decompress module '%s' (%s): %v", e.ModuleName, e.Compression, e.Err)
}

func (e *DecompressionError) Unwrap() error {
	return e.Err
}
