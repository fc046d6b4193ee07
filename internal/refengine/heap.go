package refengine

import (
	"sort"
)

// heapAlign is the alignment of every block, as with dlmalloc on wasm32.
const heapAlign = 8

// heapBase keeps low memory (and address 0) out of the heap.
const heapBase = 1024

type span struct {
	addr, size uint32
}

// heap is a first-fit allocator over a linearMemory. Freed blocks are
// coalesced; a free block touching the break lowers it.
type heap struct {
	mem  *linearMemory
	brk  uint32
	live map[uint32]uint32 // addr -> block size
	free []span            // sorted by addr
}

func newHeap(mem *linearMemory) *heap {
	return &heap{
		mem:  mem,
		brk:  heapBase,
		live: make(map[uint32]uint32),
	}
}

func alignUp(n uint32) (uint32, bool) {
	v := (uint64(n) + heapAlign - 1) &^ (heapAlign - 1)
	if v > 0xFFFFFFFF {
		return 0, false
	}
	return uint32(v), true
}

// malloc returns 0 when the memory cannot grow any further.
func (h *heap) malloc(size uint32) uint32 {
	if size == 0 {
		size = heapAlign
	}
	size, ok := alignUp(size)
	if !ok {
		return 0
	}

	for i, s := range h.free {
		if s.size < size {
			continue
		}
		if s.size-size >= heapAlign {
			h.free[i] = span{addr: s.addr + size, size: s.size - size}
		} else {
			size = s.size
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.live[s.addr] = size
		return s.addr
	}

	end := uint64(h.brk) + uint64(size)
	if end > uint64(h.mem.Size()) {
		missing := end - uint64(h.mem.Size())
		pages := (missing + pageSize - 1) / pageSize
		if pages > 0xFFFF || !h.mem.grow(uint32(pages)) {
			return 0
		}
	}
	addr := h.brk
	h.brk = uint32(end)
	h.live[addr] = size
	return addr
}

// release frees addr and reports whether it was a live block.
func (h *heap) release(addr uint32) bool {
	size, ok := h.live[addr]
	if !ok {
		return false
	}
	delete(h.live, addr)

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].addr > addr })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{addr: addr, size: size}

	// Coalesce with the following block, then the preceding one.
	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}

	if n := len(h.free); n > 0 && h.free[n-1].addr+h.free[n-1].size == h.brk {
		h.brk = h.free[n-1].addr
		h.free = h.free[:n-1]
	}
	return true
}

// realloc follows C semantics. An unknown ptr yields 0.
func (h *heap) realloc(ptr, size uint32) uint32 {
	if ptr == 0 {
		return h.malloc(size)
	}
	old, ok := h.live[ptr]
	if !ok {
		return 0
	}
	if size == 0 {
		h.release(ptr)
		return 0
	}
	if need, ok := alignUp(size); ok && need <= old {
		return ptr
	}

	addr := h.malloc(size)
	if addr == 0 {
		return 0
	}
	copy(h.mem.buf[addr:addr+old], h.mem.buf[ptr:ptr+old])
	h.release(ptr)
	return addr
}

func (h *heap) liveBlocks() int {
	return len(h.live)
}
