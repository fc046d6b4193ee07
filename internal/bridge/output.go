package bridge

import (
	"bytes"
	"context"
)

// scratchSlotSize fits one address/length pair.
const scratchSlotSize = 8

// maxCStringLen bounds NUL-terminated reads from engine memory.
const maxCStringLen = 64 << 10

// ScratchSlot is a small engine-memory region used as the out-parameter of
// calls that return a heap address. There is one per Bridge and only one
// operation may use it at a time.
type ScratchSlot struct {
	addr Address
}

// Addr returns the slot address handed to the engine.
func (s ScratchSlot) Addr() Address {
	return s.addr
}

func (s ScratchSlot) clear(mem Memory) error {
	if !mem.WriteUint32Le(uint32(s.addr), 0) {
		return &MemoryAccessError{Operation: "clear-slot", Address: s.addr, Length: 4}
	}
	return nil
}

func (s ScratchSlot) load(mem Memory) (Address, error) {
	v, ok := mem.ReadUint32Le(uint32(s.addr))
	if !ok {
		return 0, &MemoryAccessError{Operation: "read-slot", Address: s.addr, Length: 4}
	}
	return Address(v), nil
}

// OutputView is a borrowed slice of engine memory produced by a call.
//
// The engine owns the backing storage and reuses it on the next call, so at
// most one view per Bridge is valid at a time. Call Copy before issuing
// another call if the bytes must be retained.
type OutputView struct {
	data     []byte
	heapAddr Address
	gen      uint64
	owner    *Bridge
}

// Bytes returns the view without copying. The slice must not be used after
// Valid reports false.
func (v *OutputView) Bytes() []byte {
	if v == nil {
		return nil
	}
	return v.data
}

// Len returns the number of bytes in the view.
func (v *OutputView) Len() int {
	if v == nil {
		return 0
	}
	return len(v.data)
}

// HeapAddr is the engine address the view starts at.
func (v *OutputView) HeapAddr() Address {
	if v == nil {
		return 0
	}
	return v.heapAddr
}

// Valid reports whether no later call has reused the backing storage.
func (v *OutputView) Valid() bool {
	if v == nil {
		return false
	}
	return v.owner == nil || v.owner.generation() == v.gen
}

// Copy returns a detached copy of the bytes.
func (v *OutputView) Copy() []byte {
	if v == nil {
		return nil
	}
	return bytes.Clone(v.data)
}

// String decodes the view as UTF-8 text.
func (v *OutputView) String() string {
	if v == nil {
		return ""
	}
	return decodeText(v.data)
}

// withOutputCapture runs fn with the scratch slot as out-parameter. fn is
// expected to store the address of an engine allocation in the slot and return
// its length. A zero address means "no output" and yields a nil view.
func (b *Bridge) withOutputCapture(ctx context.Context, fn func(out Address) (uint32, error)) (*OutputView, error) {
	mem := b.native.Memory()
	if err := b.scratch.clear(mem); err != nil {
		return nil, err
	}

	n, err := fn(b.scratch.addr)
	if err != nil {
		return nil, err
	}

	addr, err := b.scratch.load(mem)
	if err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, nil
	}

	data, ok := mem.Read(uint32(addr), n)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read-output", Address: addr, Length: n}
	}
	return &OutputView{
		data:     data,
		heapAddr: addr,
		gen:      b.generation(),
		owner:    b,
	}, nil
}

// readUTF8Out is withOutputCapture for strings already allocated inside the
// engine: the result is decoded and copied immediately.
func (b *Bridge) readUTF8Out(ctx context.Context, fn func(out Address) (uint32, error)) (string, error) {
	view, err := b.withOutputCapture(ctx, fn)
	if err != nil {
		return "", err
	}
	return view.String(), nil
}

// readCString reads a NUL-terminated string starting at addr.
func readCString(mem Memory, addr Address) (string, error) {
	size := mem.Size()
	if uint32(addr) >= size {
		return "", &MemoryAccessError{Operation: "read-cstring", Address: addr, Length: 1}
	}

	n := size - uint32(addr)
	if n > maxCStringLen {
		n = maxCStringLen
	}
	buf, ok := mem.Read(uint32(addr), n)
	if !ok {
		return "", &MemoryAccessError{Operation: "read-cstring", Address: addr, Length: n}
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return decodeText(buf), nil
}
