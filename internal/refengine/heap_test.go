package refengine

import (
	"testing"
)

func newTestHeap(maxPages uint32) *heap {
	return newHeap(newLinearMemory(1, maxPages))
}

func TestHeapMallocAlignment(t *testing.T) {
	h := newTestHeap(4)

	for _, size := range []uint32{0, 1, 3, 8, 13, 100} {
		addr := h.malloc(size)
		if addr == 0 {
			t.Fatalf("malloc(%d) returned 0", size)
		}
		if addr%heapAlign != 0 {
			t.Errorf("malloc(%d) = %d, not %d-byte aligned", size, addr, heapAlign)
		}
		if addr < heapBase {
			t.Errorf("malloc(%d) = %d, below heap base", size, addr)
		}
	}
}

func TestHeapReuseAfterFree(t *testing.T) {
	h := newTestHeap(4)

	a := h.malloc(64)
	b := h.malloc(64)
	if !h.release(a) {
		t.Fatal("release(a) = false")
	}
	c := h.malloc(32)
	if c != a {
		t.Errorf("expected first-fit reuse of %d, got %d", a, c)
	}
	if h.release(a + 1) {
		t.Error("release of an interior address should fail")
	}
	h.release(b)
	h.release(c)
	if h.liveBlocks() != 0 {
		t.Errorf("liveBlocks = %d, want 0", h.liveBlocks())
	}
	if h.brk != heapBase {
		t.Errorf("brk = %d, want %d after freeing everything", h.brk, heapBase)
	}
	if len(h.free) != 0 {
		t.Errorf("free list = %v, want empty", h.free)
	}
}

func TestHeapDoubleFree(t *testing.T) {
	h := newTestHeap(1)
	a := h.malloc(16)
	if !h.release(a) {
		t.Fatal("first release failed")
	}
	if h.release(a) {
		t.Error("second release should report false")
	}
}

func TestHeapGrowsAndExhausts(t *testing.T) {
	h := newTestHeap(2)

	big := h.malloc(pageSize)
	if big == 0 {
		t.Fatal("expected growth to the second page")
	}
	if h.mem.pages() != 2 {
		t.Errorf("pages = %d, want 2", h.mem.pages())
	}
	if addr := h.malloc(pageSize); addr != 0 {
		t.Errorf("malloc beyond max pages = %d, want 0", addr)
	}
}

func TestHeapReallocPreservesContents(t *testing.T) {
	h := newTestHeap(4)

	a := h.malloc(8)
	h.mem.Write(a, []byte("abcdefgh"))
	// Pin a block after a so realloc cannot extend in place.
	h.malloc(8)

	b := h.realloc(a, 4096)
	if b == 0 {
		t.Fatal("realloc returned 0")
	}
	got, _ := h.mem.Read(b, 8)
	if string(got) != "abcdefgh" {
		t.Errorf("contents after realloc = %q", got)
	}
	if _, ok := h.live[a]; ok && a != b {
		t.Error("old block still live after move")
	}

	if same := h.realloc(b, 16); same != b {
		t.Errorf("shrinking realloc moved block: %d -> %d", b, same)
	}
	if h.realloc(b, 0) != 0 {
		t.Error("realloc(ptr, 0) should free and return 0")
	}
	if h.realloc(12345, 8) != 0 {
		t.Error("realloc of unknown ptr should return 0")
	}
}

func TestLinearMemoryBounds(t *testing.T) {
	m := newLinearMemory(1, 1)

	if _, ok := m.Read(pageSize-2, 4); ok {
		t.Error("read across the end should fail")
	}
	if m.Write(pageSize, []byte{1}) {
		t.Error("write past the end should fail")
	}
	if !m.WriteUint32Le(8, 0xdeadbeef) {
		t.Fatal("WriteUint32Le failed")
	}
	if v, _ := m.ReadUint32Le(8); v != 0xdeadbeef {
		t.Errorf("ReadUint32Le = %#x", v)
	}
	if m.grow(1) {
		t.Error("grow past max pages should fail")
	}
}

func TestLinearMemoryGrowInvalidatesViews(t *testing.T) {
	m := newLinearMemory(1, 2)
	m.Write(0, []byte("x"))
	view, _ := m.Read(0, 1)

	if !m.grow(1) {
		t.Fatal("grow failed")
	}
	m.Write(0, []byte("y"))
	if view[0] != 'x' {
		t.Error("view taken before growth should not observe later writes")
	}
}
