package wasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader handles loading and compiling engine modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the bytes as stored, possibly compressed.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string

	// Compression reports how Bytes is packed.
	Compression() Compression
}

// FileModuleSource loads Wasm from a file. Compression is inferred from the
// file extension.
type FileModuleSource struct {
	Path string

	// ModuleName overrides the name derived from Path.
	ModuleName string
}

// Bytes reads the file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns ModuleName, or the path without compression suffix.
func (f *FileModuleSource) Name() string {
	if f.ModuleName != "" {
		return f.ModuleName
	}
	name := f.Path
	if f.Compression() != CompressionNone {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// Compression infers compression from the extension.
func (f *FileModuleSource) Compression() Compression {
	return CompressionForPath(f.Path)
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
	Packing    Compression
}

// Bytes returns the stored bytes.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// Compression returns the declared packing.
func (m *MemoryModuleSource) Compression() Compression {
	return m.Packing
}

// LoadModule loads an engine module from a source.
// Compiles it if not already cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	raw, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	limit := l.runtime.config.MaxModuleBytes
	wasmBytes, err := decompressModule(source.Name(), source.Compression(), raw, limit)
	if err != nil {
		return nil, err
	}
	if source.Compression() == CompressionNone && limit > 0 && int64(len(wasmBytes)) > limit {
		return nil, &CompilationError{ModuleName: source.Name(), Err: errModuleTooLarge}
	}
	if !isWasmBinary(wasmBytes) {
		return nil, &CompilationError{ModuleName: source.Name(), Err: errNotWasm}
	}

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.String("compression", string(source.Compression())),
		zap.Int("stored_bytes", len(raw)),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	startTime := time.Now()

	// CompileModule decodes and validates the binary. With a cache directory
	// configured, machine code is reused across processes.
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now().Unix(),
	}

	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Duration("duration", time.Since(startTime)),
	)

	return compiledModule, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}

// LoadModuleFromMemory loads an uncompressed module from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}
