package engine

import (
	"github.com/wippyai/wasm-vm/wasm"
)

// HostFunc is a host-provided function body. Arguments arrive in declaration
// order; the returned values must match the declared result types. An error
// return becomes a HostTrap; an error that already is a trap propagates as is.
type HostFunc func(args []Value) ([]Value, error)

// FunctionInstance is a function owned by the store: either a wasm function
// referencing its containing module, or a host callable.
type FunctionInstance struct {
	Type wasm.FuncType

	// Wasm functions.
	ModuleAddr uint32
	Locals     []wasm.ValType
	Body       []byte // raw code including end opcode

	// Host functions.
	Host HostFunc

	Registered bool
}

// IsHost reports whether the function is host-provided.
func (f *FunctionInstance) IsHost() bool {
	return f.Host != nil
}

// GlobalInstance is a global variable owned by the store.
type GlobalInstance struct {
	Type       wasm.GlobalType
	Value      Value
	Registered bool
}

// ExportRef resolves an export name to an index within the owning module
// instance's per-kind address tables. Symbol is the opaque pre-compiled
// symbol pointer, nil for interpreted modules.
type ExportRef struct {
	Symbol any
	Kind   byte
	Idx    uint32
}

// ElementInstance is the runtime image of an element segment: store-wide
// function addresses. A dropped segment has nil FuncAddrs.
type ElementInstance struct {
	FuncAddrs []uint32
	Active    bool
}

// DataInstance is the runtime image of a data segment. A dropped segment has
// nil Bytes.
type DataInstance struct {
	Bytes  []byte
	Active bool
}

// ModuleInstance is the runtime image of a module after linking and
// initialization. It holds weak references (store addresses) to entities it
// does not own.
type ModuleInstance struct {
	Name string

	Types       []wasm.FuncType
	FuncAddrs   []uint32
	TableAddrs  []uint32
	MemAddrs    []uint32
	GlobalAddrs []uint32

	Exports map[string]ExportRef
	Start   *uint32

	Elements []ElementInstance
	Datas    []DataInstance

	// Constructor is the opaque pre-compiled constructor symbol; nil for
	// interpreted modules.
	Constructor any

	Registered bool
}

// Export looks up an export by name.
func (m *ModuleInstance) Export(name string) (ExportRef, bool) {
	ref, ok := m.Exports[name]
	return ref, ok
}

// FuncAddr resolves a module-local function index to a store address.
func (m *ModuleInstance) FuncAddr(idx uint32) (uint32, bool) {
	if int(idx) >= len(m.FuncAddrs) {
		return 0, false
	}
	return m.FuncAddrs[idx], true
}
