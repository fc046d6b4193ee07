package bridge

import (
	"fmt"
	"sync"
)

// FunctionTable is the engine-side registry of host callbacks. Engines embed
// one and hand its indexes to native code in place of function pointers.
// Index 0 is reserved for "no callback".
type FunctionTable struct {
	mu    sync.RWMutex
	slots []CodeBlockHook // slots[i] holds index i+1
	free  []uint32
	limit int
}

// NewFunctionTable creates a table holding at most limit live entries.
// limit <= 0 means unbounded.
func NewFunctionTable(limit int) *FunctionTable {
	return &FunctionTable{limit: limit}
}

// Add registers hook and returns its index.
func (t *FunctionTable) Add(hook CodeBlockHook) (uint32, error) {
	if hook == nil {
		return 0, fmt.Errorf("cannot register a nil function")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx-1] = hook
		return idx, nil
	}
	if t.limit > 0 && len(t.slots) >= t.limit {
		return 0, fmt.Errorf("function table full (%d entries)", t.limit)
	}
	t.slots = append(t.slots, hook)
	return uint32(len(t.slots)), nil
}

// Remove releases index. Removing an unknown index is a no-op.
func (t *FunctionTable) Remove(index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index == 0 || int(index) > len(t.slots) || t.slots[index-1] == nil {
		return
	}
	t.slots[index-1] = nil
	t.free = append(t.free, index)
}

// Get returns the hook at index.
func (t *FunctionTable) Get(index uint32) (CodeBlockHook, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index == 0 || int(index) > len(t.slots) {
		return nil, false
	}
	hook := t.slots[index-1]
	return hook, hook != nil
}

// Len returns the number of live entries.
func (t *FunctionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots) - len(t.free)
}
