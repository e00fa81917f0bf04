package engine

import (
	"github.com/wippyai/wasm-vm/errors"
)

// CompiledEnv is the narrow boundary handed to a pre-compiled module's
// constructor symbol: four proxy callbacks the generated code uses to reach
// back into the runtime. The pure interpreter satisfies them with direct
// store operations.
type CompiledEnv struct {
	// Trap aborts execution with the given trap code.
	Trap func(code errors.TrapCode) error

	// Call invokes a function by module-local index.
	Call func(funcIdx uint32, args []Value) ([]Value, error)

	// MemoryGrow grows the default memory, returning the old page count or
	// -1 on failure.
	MemoryGrow func(pages uint32) int32

	// MemorySize returns the default memory's page count.
	MemorySize func() uint32
}

// Constructor is the shape of a pre-compiled module's constructor symbol.
type Constructor func(env CompiledEnv) error

// NewCompiledEnv builds the proxy callbacks for a module instance.
func NewCompiledEnv(it *Interpreter, s *Store, moduleAddr uint32) CompiledEnv {
	inst := s.GetModule(moduleAddr)
	return CompiledEnv{
		Trap: func(code errors.TrapCode) error {
			return errors.NewTrap(code)
		},
		Call: func(funcIdx uint32, args []Value) ([]Value, error) {
			addr, ok := inst.FuncAddr(funcIdx)
			if !ok {
				return nil, errors.InvalidInput(errors.PhaseExec, "function index out of range")
			}
			return it.RunFunction(s, addr, args)
		},
		MemoryGrow: func(pages uint32) int32 {
			if len(inst.MemAddrs) == 0 {
				return -1
			}
			return s.GetMemory(inst.MemAddrs[0]).Grow(pages)
		},
		MemorySize: func() uint32 {
			if len(inst.MemAddrs) == 0 {
				return 0
			}
			return s.GetMemory(inst.MemAddrs[0]).Pages()
		},
	}
}
