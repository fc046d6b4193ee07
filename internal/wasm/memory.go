package wasm

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"

	abi "github.com/woxQAQ/markdown-wasm-go/api/wasm"
)

// Memory wraps an engine's exported linear memory and satisfies
// bridge.Memory.
//
// Engine memory is separate from Go memory. Slices returned by Read alias it
// and go stale when the guest grows its memory, so anything kept beyond the
// current call must be copied. All accesses are bounds checked by wazero.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper over the module's exported "memory". It
// returns false when the module does not export one.
func NewMemory(module api.Module) (*Memory, bool) {
	// Module.Memory wraps a nil instance in a non-nil interface, so the
	// export lookup is the only reliable presence check.
	mem := module.ExportedMemory(abi.ExportMemory)
	if mem == nil {
		return nil, false
	}
	return &Memory{mem: mem}, true
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Read returns a view of length bytes at ptr.
func (m *Memory) Read(ptr, length uint32) ([]byte, bool) {
	return m.mem.Read(ptr, length)
}

// Write copies v to ptr.
func (m *Memory) Write(ptr uint32, v []byte) bool {
	return m.mem.Write(ptr, v)
}

// ReadUint32Le reads a little-endian 32-bit value, such as a pointer.
func (m *Memory) ReadUint32Le(ptr uint32) (uint32, bool) {
	return m.mem.ReadUint32Le(ptr)
}

// WriteUint32Le writes a little-endian 32-bit value.
func (m *Memory) WriteUint32Le(ptr, v uint32) bool {
	return m.mem.WriteUint32Le(ptr, v)
}

// ReadString copies up to length bytes at ptr, stopping at a NUL byte.
func (m *Memory) ReadString(ptr, length uint32) (string, bool) {
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), true
}
