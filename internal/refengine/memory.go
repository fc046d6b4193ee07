package refengine

import (
	"encoding/binary"
)

// pageSize matches the WebAssembly page size.
const pageSize = 65536

// linearMemory is a byte-addressed memory that grows in pages, with the same
// aliasing rules as a WebAssembly memory: slices returned by Read are views
// and become stale when the memory grows.
type linearMemory struct {
	buf      []byte
	maxPages uint32
}

func newLinearMemory(initialPages, maxPages uint32) *linearMemory {
	return &linearMemory{
		buf:      make([]byte, int(initialPages)*pageSize),
		maxPages: maxPages,
	}
}

func (m *linearMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *linearMemory) pages() uint32 {
	return uint32(len(m.buf) / pageSize)
}

func (m *linearMemory) inRange(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(len(m.buf))
}

func (m *linearMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inRange(offset, byteCount) {
		return nil, false
	}
	end := offset + byteCount
	return m.buf[offset:end:end], true
}

func (m *linearMemory) Write(offset uint32, v []byte) bool {
	if !m.inRange(offset, uint32(len(v))) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *linearMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inRange(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), true
}

func (m *linearMemory) WriteUint32Le(offset, v uint32) bool {
	if !m.inRange(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return true
}

// grow adds delta pages. The backing array is always replaced so that stale
// views behave like they would against a real module.
func (m *linearMemory) grow(delta uint32) bool {
	if delta == 0 {
		return true
	}
	if uint64(m.pages())+uint64(delta) > uint64(m.maxPages) {
		return false
	}
	nb := make([]byte, len(m.buf)+int(delta)*pageSize)
	copy(nb, m.buf)
	m.buf = nb
	return true
}
