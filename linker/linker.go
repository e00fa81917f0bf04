package linker

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// Mode selects how an instantiated module relates to the store lifecycle.
type Mode int

const (
	// ModeInstantiate creates a regular user module; it is dropped by
	// Store.Reset.
	ModeInstantiate Mode = iota
	// ModeImport registers the module as host-provided; it and its entities
	// survive Store.Reset.
	ModeImport
)

// Instantiate links and initializes a validated module under the given name.
//
// The protocol runs in a fixed order: name check, instance allocation, type
// copy, import resolution, function allocation, global initialization,
// table and memory allocation, a pre-pass over every element and data
// offset, segment bounds checks and application, export map construction,
// the optional pre-compiled constructor, and finally the start function.
// Any failure rolls the partial instance back out of the store; the module
// name stays unbound and pre-existing modules are untouched.
func Instantiate(
	s *engine.Store,
	it *engine.Interpreter,
	module *wasm.Module,
	name string,
	mode Mode,
) (*engine.ModuleInstance, error) {
	if _, exists := s.FindModule(name); exists {
		return nil, errors.Link(errors.KindModuleNameConflict, "%q", name)
	}

	snap := s.Snapshot()
	it.Provider().Reset()

	inst := &engine.ModuleInstance{
		Name:        name,
		Exports:     make(map[string]engine.ExportRef),
		Start:       module.Start,
		Constructor: module.Constructor,
		Registered:  mode == ModeImport,
	}
	addr := s.PushModule(inst)

	if err := link(s, it, module, inst, addr, mode); err != nil {
		s.Rollback(snap)
		Logger().Debug("instantiation failed",
			zap.String("module", name), zap.Error(err))
		return nil, err
	}

	Logger().Debug("module instantiated",
		zap.String("module", name),
		zap.Int("functions", len(inst.FuncAddrs)),
		zap.Int("exports", len(inst.Exports)))
	return inst, nil
}

func link(
	s *engine.Store,
	it *engine.Interpreter,
	module *wasm.Module,
	inst *engine.ModuleInstance,
	addr uint32,
	mode Mode,
) error {
	registered := mode == ModeImport

	// Types are copied into the instance, preserving order.
	inst.Types = append(inst.Types, module.Types...)

	if err := resolveImports(s, module, inst); err != nil {
		return err
	}

	// Functions: one instance per (type index, code body) pair, appended
	// after the imported functions.
	for i, typeIdx := range module.Funcs {
		body := &module.Code[i]
		fn := &engine.FunctionInstance{
			Type:       module.Types[typeIdx],
			ModuleAddr: addr,
			Locals:     body.LocalTypes(),
			Body:       body.Code,
			Registered: registered,
		}
		inst.FuncAddrs = append(inst.FuncAddrs, s.AllocFunction(fn))
	}

	// Globals: allocate, then evaluate each initializer in a minimal frame.
	// Initializers may only reference already-imported globals.
	numImported := uint32(module.NumImportedGlobals())
	for i, g := range module.Globals {
		if err := checkInitRefsImportsOnly(g.Init, numImported); err != nil {
			return err
		}
		v, err := it.EvalConstExpr(s, addr, g.Init)
		if err != nil {
			return err
		}
		if v.Type != g.Type.ValType {
			return errors.New(errors.PhaseInstantiate, errors.KindTypeMismatch,
				"global %d initializer yields %s, declared %s", i, v.Type, g.Type.ValType)
		}
		inst.GlobalAddrs = append(inst.GlobalAddrs, s.AllocGlobal(&engine.GlobalInstance{
			Type:       g.Type,
			Value:      v,
			Registered: registered,
		}))
	}

	// Tables: allocated with declared limits, slots left empty.
	for _, tt := range module.Tables {
		inst.TableAddrs = append(inst.TableAddrs, s.AllocTable(engine.NewTableInstance(tt)))
	}

	// Memories: allocated zeroed.
	for _, mt := range module.Memories {
		inst.MemAddrs = append(inst.MemAddrs, s.AllocMemory(mt))
	}

	// Runtime segment instances. Element function indices become store-wide
	// addresses now that the function index space is complete.
	for _, elem := range module.Elements {
		ei := engine.ElementInstance{Active: elem.IsActive()}
		for _, fi := range elem.FuncIdxs {
			ei.FuncAddrs = append(ei.FuncAddrs, inst.FuncAddrs[fi])
		}
		if elem.Flags == 3 || elem.Flags == 7 {
			// Declarative segments are dropped immediately.
			ei.FuncAddrs = nil
		}
		inst.Elements = append(inst.Elements, ei)
	}
	for _, d := range module.Data {
		inst.Datas = append(inst.Datas, engine.DataInstance{
			Bytes:  d.Init,
			Active: d.IsActive(),
		})
	}

	if err := applySegments(s, it, module, inst, addr); err != nil {
		return err
	}

	// Exports. Duplicate names are caught by validation; the check here is
	// an assertion.
	for _, exp := range module.Exports {
		if _, dup := inst.Exports[exp.Name]; dup {
			return errors.Validation(errors.KindDuplicateExport, nil, "%q", exp.Name)
		}
		inst.Exports[exp.Name] = engine.ExportRef{
			Kind:   exp.Kind,
			Idx:    exp.Idx,
			Symbol: exp.Symbol,
		}
	}

	// Pre-compiled constructor, when the engine honors it.
	if it.Config().Mode == engine.ModeCompiledIfPresent && inst.Constructor != nil {
		if ctor, ok := inst.Constructor.(engine.Constructor); ok {
			if err := ctor(engine.NewCompiledEnv(it, s, addr)); err != nil {
				return err
			}
		}
	}

	// Start function. A trap here is the instantiation result.
	if module.Start != nil {
		fnAddr := inst.FuncAddrs[*module.Start]
		if _, err := it.RunFunction(s, fnAddr, nil); err != nil {
			return err
		}
	}

	return nil
}

// checkInitRefsImportsOnly rejects global initializers that read a
// non-imported global.
func checkInitRefsImportsOnly(init []byte, numImported uint32) error {
	instrs, err := wasm.DecodeInstructions(init)
	if err != nil {
		return err
	}
	for _, in := range instrs {
		if in.Opcode == wasm.OpGlobalGet {
			if idx := in.Imm.(wasm.GlobalImm).GlobalIdx; idx >= numImported {
				return errors.Instantiation(errors.KindGlobalInitRefsNonImport,
					"global.get %d references a non-imported global", idx)
			}
		}
	}
	return nil
}

// applySegments evaluates every element and data offset first, bounds-checks
// every active segment, and only then writes, in segment order.
func applySegments(
	s *engine.Store,
	it *engine.Interpreter,
	module *wasm.Module,
	inst *engine.ModuleInstance,
	addr uint32,
) error {
	// Offset pre-pass: both vectors are complete before any write.
	elemOffsets := make([]uint32, len(module.Elements))
	for i, elem := range module.Elements {
		if !elem.IsActive() {
			continue
		}
		v, err := it.EvalConstExpr(s, addr, elem.Offset)
		if err != nil {
			return err
		}
		elemOffsets[i] = uint32(v.I32())
	}
	dataOffsets := make([]uint32, len(module.Data))
	for i, d := range module.Data {
		if !d.IsActive() {
			continue
		}
		v, err := it.EvalConstExpr(s, addr, d.Offset)
		if err != nil {
			return err
		}
		dataOffsets[i] = uint32(v.I32())
	}

	// Bounds checks before the first write.
	for i, elem := range module.Elements {
		if !elem.IsActive() {
			continue
		}
		table := s.GetTable(inst.TableAddrs[elem.TableIdx])
		end := uint64(elemOffsets[i]) + uint64(len(elem.FuncIdxs))
		if end > uint64(table.Size()) {
			return errors.Instantiation(errors.KindElementSegmentOutOfBounds,
				"segment %d: offset %d + %d > table size %d",
				i, elemOffsets[i], len(elem.FuncIdxs), table.Size())
		}
	}
	for i, d := range module.Data {
		if !d.IsActive() {
			continue
		}
		mem := s.GetMemory(inst.MemAddrs[d.MemIdx])
		end := uint64(dataOffsets[i]) + uint64(len(d.Init))
		if end > mem.ByteSize() {
			return errors.Instantiation(errors.KindDataSegmentOutOfBounds,
				"segment %d: offset %d + %d > memory size %d",
				i, dataOffsets[i], len(d.Init), mem.ByteSize())
		}
	}

	// Apply in segment order. Active segments are dropped after use.
	for i, elem := range module.Elements {
		if !elem.IsActive() {
			continue
		}
		table := s.GetTable(inst.TableAddrs[elem.TableIdx])
		if err := table.Init(uint64(elemOffsets[i]), 0,
			uint64(len(inst.Elements[i].FuncAddrs)), inst.Elements[i].FuncAddrs); err != nil {
			return err
		}
		inst.Elements[i].FuncAddrs = nil
	}
	for i, d := range module.Data {
		if !d.IsActive() {
			continue
		}
		mem := s.GetMemory(inst.MemAddrs[d.MemIdx])
		if err := mem.Write(uint64(dataOffsets[i]), d.Init); err != nil {
			return err
		}
		inst.Datas[i].Bytes = nil
	}
	return nil
}
