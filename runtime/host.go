package runtime

import (
	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// HostModuleBuilder assembles a host-provided module whose exports are Go
// functions, memories, tables, and globals. Registered host modules survive
// Runtime.Reset.
//
// Example:
//
//	err := rt.NewHostModule("env").
//	    AddFunc("log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
//	        func(args []engine.Value) ([]engine.Value, error) {
//	            fmt.Println("guest says:", args[0].I32())
//	            return nil, nil
//	        }).
//	    AddGlobal("offset", wasm.GlobalType{ValType: wasm.ValI32}, engine.I32Value(1024)).
//	    Register()
type HostModuleBuilder struct {
	rt   *Runtime
	inst *engine.ModuleInstance
	err  error
}

// NewHostModule starts building a host module with the given name.
func (r *Runtime) NewHostModule(name string) *HostModuleBuilder {
	return &HostModuleBuilder{
		rt: r,
		inst: &engine.ModuleInstance{
			Name:    name,
			Exports: make(map[string]engine.ExportRef),
		},
	}
}

// AddFunc exports a host function under the given name.
func (b *HostModuleBuilder) AddFunc(name string, ft wasm.FuncType, fn engine.HostFunc) *HostModuleBuilder {
	if b.err != nil {
		return b
	}
	addr := b.rt.store.AllocFunction(&engine.FunctionInstance{
		Type:       ft,
		Host:       fn,
		Registered: true,
	})
	idx := uint32(len(b.inst.FuncAddrs))
	b.inst.FuncAddrs = append(b.inst.FuncAddrs, addr)
	b.inst.Types = append(b.inst.Types, ft)
	b.export(name, wasm.KindFunc, idx)
	return b
}

// AddMemory exports a fresh memory with the given type.
func (b *HostModuleBuilder) AddMemory(name string, mt wasm.MemoryType) *HostModuleBuilder {
	if b.err != nil {
		return b
	}
	addr := b.rt.store.AllocMemory(mt)
	idx := uint32(len(b.inst.MemAddrs))
	b.inst.MemAddrs = append(b.inst.MemAddrs, addr)
	b.export(name, wasm.KindMemory, idx)
	return b
}

// AddTable exports a fresh table with the given type.
func (b *HostModuleBuilder) AddTable(name string, tt wasm.TableType) *HostModuleBuilder {
	if b.err != nil {
		return b
	}
	addr := b.rt.store.AllocTable(engine.NewTableInstance(tt))
	idx := uint32(len(b.inst.TableAddrs))
	b.inst.TableAddrs = append(b.inst.TableAddrs, addr)
	b.export(name, wasm.KindTable, idx)
	return b
}

// AddGlobal exports a global with the given type and initial value.
func (b *HostModuleBuilder) AddGlobal(name string, gt wasm.GlobalType, v engine.Value) *HostModuleBuilder {
	if b.err != nil {
		return b
	}
	if v.Type != gt.ValType {
		b.err = errors.InvalidInput(errors.PhaseLink, "global value type mismatch")
		return b
	}
	addr := b.rt.store.AllocGlobal(&engine.GlobalInstance{
		Type:       gt,
		Value:      v,
		Registered: true,
	})
	idx := uint32(len(b.inst.GlobalAddrs))
	b.inst.GlobalAddrs = append(b.inst.GlobalAddrs, addr)
	b.export(name, wasm.KindGlobal, idx)
	return b
}

func (b *HostModuleBuilder) export(name string, kind byte, idx uint32) {
	if _, dup := b.inst.Exports[name]; dup {
		b.err = errors.Validation(errors.KindDuplicateExport, nil, "%q", name)
		return
	}
	b.inst.Exports[name] = engine.ExportRef{Kind: kind, Idx: idx}
}

// Register adds the module to the store as host-provided. It fails with
// ModuleNameConflict when the name is taken.
func (b *HostModuleBuilder) Register() error {
	if b.err != nil {
		return b.err
	}
	if _, exists := b.rt.store.FindModule(b.inst.Name); exists {
		return errors.Link(errors.KindModuleNameConflict, "%q", b.inst.Name)
	}
	b.rt.store.ImportModule(b.inst)
	return nil
}

// RegisterHostModule registers a pre-populated host module instance.
func (r *Runtime) RegisterHostModule(inst *engine.ModuleInstance) error {
	if _, exists := r.store.FindModule(inst.Name); exists {
		return errors.Link(errors.KindModuleNameConflict, "%q", inst.Name)
	}
	r.store.ImportModule(inst)
	return nil
}
