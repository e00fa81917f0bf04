package engine

import (
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// NullFuncAddr marks an uninitialized table slot.
const NullFuncAddr uint32 = 0xFFFFFFFF

// TableInstance is a funcref table owned by the store. Slots hold store-wide
// function addresses, defaulting to none.
type TableInstance struct {
	ElemType wasm.ValType
	Limits   wasm.Limits
	elements []uint32
}

// NewTableInstance allocates a table of the declared minimum size with every
// slot empty.
func NewTableInstance(tt wasm.TableType) *TableInstance {
	elements := make([]uint32, tt.Limits.Min)
	for i := range elements {
		elements[i] = NullFuncAddr
	}
	return &TableInstance{ElemType: tt.ElemType, Limits: tt.Limits, elements: elements}
}

// Size returns the current number of slots.
func (t *TableInstance) Size() uint32 {
	return uint32(len(t.elements))
}

// Get returns the function address at index, trapping when the index is out
// of range.
func (t *TableInstance) Get(index uint32) (uint32, error) {
	if index >= t.Size() {
		return 0, errors.TrapWithDetail(errors.TrapOutOfBoundsTableAccess,
			"index %d size %d", index, t.Size())
	}
	return t.elements[index], nil
}

// Set places a function address at index.
func (t *TableInstance) Set(index uint32, funcAddr uint32) error {
	if index >= t.Size() {
		return errors.TrapWithDetail(errors.TrapOutOfBoundsTableAccess,
			"index %d size %d", index, t.Size())
	}
	t.elements[index] = funcAddr
	return nil
}

// Grow extends the table by n slots initialized to val, returning the old
// size or -1 when the declared maximum would be exceeded.
func (t *TableInstance) Grow(n uint32, val uint32) int32 {
	old := t.Size()
	if t.Limits.Max != nil && uint64(old)+uint64(n) > uint64(*t.Limits.Max) {
		return -1
	}
	for i := uint32(0); i < n; i++ {
		t.elements = append(t.elements, val)
	}
	return int32(old)
}

// Init copies n function addresses from src into the table at dst.
func (t *TableInstance) Init(dst, src, n uint64, funcAddrs []uint32) error {
	if src+n > uint64(len(funcAddrs)) || dst+n > uint64(t.Size()) {
		return errors.NewTrap(errors.TrapOutOfBoundsTableAccess)
	}
	copy(t.elements[dst:dst+n], funcAddrs[src:src+n])
	return nil
}

// Copy moves n slots from src in t to dst in dest.
func (t *TableInstance) Copy(dest *TableInstance, dst, src, n uint64) error {
	if src+n > uint64(t.Size()) || dst+n > uint64(dest.Size()) {
		return errors.NewTrap(errors.TrapOutOfBoundsTableAccess)
	}
	copy(dest.elements[dst:dst+n], t.elements[src:src+n])
	return nil
}
