package bridge

import (
	"context"
	"fmt"
	"math"
)

// Allocator is a thin wrapper over the engine's realloc/free exports.
type Allocator struct {
	native Native
}

// Aligned is the result of an aligned allocation. Free must be called with
// Original, never with Addr.
type Aligned struct {
	Original Address
	Addr     Address
}

// NewAllocator creates an allocator for the engine's heap.
func NewAllocator(native Native) *Allocator {
	return &Allocator{native: native}
}

// Alloc allocates size bytes. A zero address from the engine is reported as
// an *AllocationError and is never returned.
func (a *Allocator) Alloc(ctx context.Context, size uint32) (Address, error) {
	addr, err := a.native.Realloc(ctx, 0, size)
	if err != nil {
		return 0, &AllocationError{Size: size, Err: err}
	}
	if addr == 0 {
		return 0, &AllocationError{Size: size}
	}
	return addr, nil
}

// Free releases an address returned by Alloc or Aligned.Original.
// Freeing 0 is a no-op.
func (a *Allocator) Free(ctx context.Context, addr Address) error {
	if addr == 0 {
		return nil
	}
	return a.native.Free(ctx, addr)
}

// AllocBytes allocates len(data) bytes and copies data into them.
func (a *Allocator) AllocBytes(ctx context.Context, data []byte) (Address, error) {
	n, err := transferSize(len(data))
	if err != nil {
		return 0, err
	}
	addr, err := a.Alloc(ctx, n)
	if err != nil {
		return 0, err
	}
	if !a.native.Memory().Write(uint32(addr), data) {
		_ = a.Free(ctx, addr)
		return 0, &MemoryAccessError{Operation: "write", Address: addr, Length: n}
	}
	return addr, nil
}

// AllocAligned allocates at least size bytes starting on an align boundary.
// align must be a power of two.
func (a *Allocator) AllocAligned(ctx context.Context, size, align uint32) (Aligned, error) {
	if align == 0 || align&(align-1) != 0 {
		return Aligned{}, fmt.Errorf("alignment %d is not a power of two", align)
	}
	if uint64(size)+uint64(align-1) > math.MaxUint32 {
		return Aligned{}, &AllocationError{Size: size, Err: fmt.Errorf("size overflows with alignment %d", align)}
	}

	orig, err := a.Alloc(ctx, size+align-1)
	if err != nil {
		return Aligned{}, err
	}
	aligned := (uint32(orig) + align - 1) &^ (align - 1)
	return Aligned{Original: orig, Addr: Address(aligned)}, nil
}

// Alloc16 allocates size bytes on a 16-bit boundary.
func (a *Allocator) Alloc16(ctx context.Context, size uint32) (Aligned, error) {
	return a.AllocAligned(ctx, size, 2)
}

// Alloc32 allocates size bytes on a 32-bit boundary.
func (a *Allocator) Alloc32(ctx context.Context, size uint32) (Aligned, error) {
	return a.AllocAligned(ctx, size, 4)
}
