package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/linker"
	"github.com/wippyai/wasm-vm/wasm"
)

// Runtime is the embedding API: a store plus an interpreter, with module
// loading, host module registration, instantiation, and invocation.
//
// A Runtime is single-threaded; exactly one instantiation or invocation is
// active at any time.
type Runtime struct {
	store  *engine.Store
	interp *engine.Interpreter
}

// Option configures a Runtime.
type Option func(*engine.Config)

// WithMemoryMaxPages caps all memory allocations and growth, in 64 KiB
// pages. The default is 65536.
func WithMemoryMaxPages(pages uint32) Option {
	return func(c *engine.Config) {
		c.MemoryMaxPages = pages
	}
}

// WithInterpretMode selects whether pre-compiled constructor symbols are
// honored. The default is engine.ModePure.
func WithInterpretMode(mode engine.InterpretMode) Option {
	return func(c *engine.Config) {
		c.Mode = mode
	}
}

// WithMaxCallDepth bounds the call stack; exceeding it traps with
// CallStackExhausted. The default is 1000.
func WithMaxCallDepth(depth int) Option {
	return func(c *engine.Config) {
		c.MaxCallDepth = depth
	}
}

// New creates a Runtime with the given options.
func New(opts ...Option) *Runtime {
	cfg := engine.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{
		store:  engine.NewStore(cfg.MemoryMaxPages),
		interp: engine.NewInterpreter(cfg),
	}
}

// Store returns the runtime's store.
func (r *Runtime) Store() *engine.Store {
	return r.store
}

// Load parses and validates a WebAssembly binary module.
func Load(data []byte) (*wasm.Module, error) {
	return wasm.ParseModuleValidate(data)
}

// Instantiate links and initializes a loaded module under the given name.
// Modules instantiated with linker.ModeImport survive Reset.
func (r *Runtime) Instantiate(module *wasm.Module, name string, mode linker.Mode) (*engine.ModuleInstance, error) {
	return linker.Instantiate(r.store, r.interp, module, name, mode)
}

// InstantiateBytes loads, validates, and instantiates a binary module.
func (r *Runtime) InstantiateBytes(data []byte, name string, mode linker.Mode) (*engine.ModuleInstance, error) {
	module, err := Load(data)
	if err != nil {
		return nil, err
	}
	return r.Instantiate(module, name, mode)
}

// Invoke calls an exported function of a named module. Arguments are Go
// numbers or engine.Value; results come back as tagged values. Traps are
// returned as *errors.Trap.
func (r *Runtime) Invoke(moduleName, funcName string, args ...any) ([]engine.Value, error) {
	addr, ok := r.store.FindModule(moduleName)
	if !ok {
		return nil, errors.NotFound(errors.PhaseExec, "module", moduleName)
	}
	inst := r.store.GetModule(addr)
	ref, ok := inst.Export(funcName)
	if !ok || ref.Kind != wasm.KindFunc {
		return nil, errors.NotFound(errors.PhaseExec, "function", funcName)
	}
	fnAddr := inst.FuncAddrs[ref.Idx]

	fn := r.store.GetFunction(fnAddr)
	vals := make([]engine.Value, len(args))
	for i, a := range args {
		v, err := engine.ValueFromAny(a)
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseExec, err.Error())
		}
		// Untyped Go ints land as i64; coerce to the declared parameter.
		if i < len(fn.Type.Params) && v.Type != fn.Type.Params[i] {
			v = coerce(v, fn.Type.Params[i])
		}
		vals[i] = v
	}

	Logger().Debug("invoke",
		zap.String("module", moduleName),
		zap.String("function", funcName),
		zap.Int("args", len(vals)))
	return r.interp.RunFunction(r.store, fnAddr, vals)
}

// Reset drops every module except those registered as host-provided.
func (r *Runtime) Reset() {
	r.store.Reset()
	r.interp.Provider().Reset()
}

func coerce(v engine.Value, want wasm.ValType) engine.Value {
	switch want {
	case wasm.ValI32:
		return engine.I32Value(int32(v.I64()))
	case wasm.ValI64:
		return engine.I64Value(v.I64())
	case wasm.ValF32:
		if v.Type == wasm.ValF64 {
			return engine.F32Value(float32(v.F64()))
		}
	case wasm.ValF64:
		if v.Type == wasm.ValF32 {
			return engine.F64Value(float64(v.F32()))
		}
	}
	return v
}
