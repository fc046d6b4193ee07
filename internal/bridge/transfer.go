package bridge

import (
	"context"
	"math"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// withTransferBuffer copies data into a fresh engine allocation, calls fn with
// its address and length, and frees the allocation on every exit path.
// There is no pooling: each call pays one allocate+copy+free.
func withTransferBuffer[R any](ctx context.Context, heap *Allocator, mem Memory, data []byte, fn func(addr Address, n uint32) (R, error)) (result R, err error) {
	n, err := transferSize(len(data))
	if err != nil {
		return result, err
	}

	// Empty input still gets a real address so the engine never sees NULL.
	size := n
	if size == 0 {
		size = 1
	}
	addr, err := heap.Alloc(ctx, size)
	if err != nil {
		return result, err
	}
	defer func() {
		if ferr := heap.Free(ctx, addr); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if n > 0 && !mem.Write(uint32(addr), data) {
		return result, &MemoryAccessError{Operation: "write", Address: addr, Length: n}
	}
	return fn(addr, n)
}

// transferSize returns n as an engine length. Engine lengths are 32-bit, so
// larger inputs are rejected before anything is allocated.
func transferSize(n int) (uint32, error) {
	if uint64(n) > math.MaxUint32 {
		return 0, &InvalidOptionError{
			Option: "input length",
			Value:  strconv.Itoa(n),
			Reason: "exceeds the 32-bit engine address space",
		}
	}
	return uint32(n), nil
}

// encodeText converts host text to the UTF-8 bytes handed to the engine.
// Ill-formed sequences become U+FFFD.
func encodeText(s string) []byte {
	if utf8.ValidString(s) {
		return []byte(s)
	}
	b, err := unicode.UTF8.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// decodeText converts engine output to host text. Ill-formed sequences
// become U+FFFD. The result never aliases b.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
