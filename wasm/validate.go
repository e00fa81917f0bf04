package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-vm/errors"
)

// Validate checks the module against the WebAssembly spec. It runs the
// structural pass (index ranges, export uniqueness, start signature, limits)
// and then type-checks every function body. Validation is total: the module
// is either fully valid or the first offending location is reported.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateImports(); err != nil {
		return err
	}
	if err := m.validateTablesAndMemories(); err != nil {
		return err
	}
	if err := m.validateGlobals(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateSegments(); err != nil {
		return err
	}
	return m.validateCode()
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
// This is a convenience function combining ParseModule and Validate.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, ft := range m.Types {
		if len(ft.Results) > 1 {
			return errors.Validation(errors.KindTypeMismatch,
				[]string{fmt.Sprintf("type[%d]", i)},
				"%d results declared, MVP allows at most 1", len(ft.Results))
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return errors.Validation(errors.KindUnknownType,
				[]string{fmt.Sprintf("func[%d]", i)},
				"type index %d out of range (%d types)", typeIdx, numTypes)
		}
	}
	return nil
}

func (m *Module) validateImports() error {
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= uint32(len(m.Types)) {
			return errors.Validation(errors.KindUnknownType,
				[]string{fmt.Sprintf("import[%d]", i)},
				"%s.%s references type index %d", imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
	}
	return nil
}

func (m *Module) validateTablesAndMemories() error {
	if m.NumImportedTables()+len(m.Tables) > 1 {
		return errors.Validation(errors.KindUnknownTable, nil, "multiple tables")
	}
	if m.NumImportedMemories()+len(m.Memories) > 1 {
		return errors.Validation(errors.KindUnknownMemory, nil, "multiple memories")
	}
	check := func(mt MemoryType, where string) error {
		if mt.Limits.Min > MaxMemoryPages {
			return errors.Validation(errors.KindUnknownMemory, []string{where},
				"minimum %d pages exceeds %d", mt.Limits.Min, MaxMemoryPages)
		}
		if mt.Limits.Max != nil && *mt.Limits.Max > MaxMemoryPages {
			return errors.Validation(errors.KindUnknownMemory, []string{where},
				"maximum %d pages exceeds %d", *mt.Limits.Max, MaxMemoryPages)
		}
		return nil
	}
	for i, mem := range m.Memories {
		if err := check(mem, fmt.Sprintf("memory[%d]", i)); err != nil {
			return err
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			if err := check(*imp.Desc.Memory, fmt.Sprintf("import[%d]", i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateGlobals checks that every global initializer is a single constant
// of the declared type or a global.get of an imported global of that type.
func (m *Module) validateGlobals() error {
	importedGlobals := m.importedGlobalTypes()
	for i, g := range m.Globals {
		where := []string{fmt.Sprintf("global[%d]", i)}
		instrs, err := DecodeInstructions(g.Init)
		if err != nil {
			return err
		}
		if len(instrs) != 2 || instrs[1].Opcode != OpEnd {
			return errors.Validation(errors.KindTypeMismatch, where,
				"initializer must be a single constant expression")
		}
		got, known, err := constExprType(instrs[0], importedGlobals)
		if err != nil {
			return errors.Validation(errors.KindTypeMismatch, where, "%v", err)
		}
		if known && got != g.Type.ValType {
			return errors.Validation(errors.KindTypeMismatch, where,
				"initializer yields %s, global declared %s", got, g.Type.ValType)
		}
	}
	return nil
}

func (m *Module) importedGlobalTypes() []GlobalType {
	var out []GlobalType
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			out = append(out, *imp.Desc.Global)
		}
	}
	return out
}

// constExprType returns the value type produced by a constant instruction.
// A global.get referencing a non-imported global is legal here and reported
// at instantiation time instead; its type is unknown until then.
func constExprType(in Instruction, importedGlobals []GlobalType) (t ValType, known bool, err error) {
	switch in.Opcode {
	case OpI32Const:
		return ValI32, true, nil
	case OpI64Const:
		return ValI64, true, nil
	case OpF32Const:
		return ValF32, true, nil
	case OpF64Const:
		return ValF64, true, nil
	case OpGlobalGet:
		idx := in.Imm.(GlobalImm).GlobalIdx
		if int(idx) >= len(importedGlobals) {
			return 0, false, nil
		}
		if importedGlobals[idx].Mutable {
			return 0, false, fmt.Errorf("global.get %d references a mutable global", idx)
		}
		return importedGlobals[idx].ValType, true, nil
	default:
		return 0, false, fmt.Errorf("opcode 0x%02x not constant", in.Opcode)
	}
}

func (m *Module) validateExports() error {
	numFuncs := uint32(m.NumImportedFuncs() + len(m.Funcs))
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numMemories := uint32(m.NumImportedMemories() + len(m.Memories))
	numGlobals := uint32(m.NumImportedGlobals() + len(m.Globals))

	seen := make(map[string]struct{}, len(m.Exports))
	for i, exp := range m.Exports {
		where := []string{fmt.Sprintf("export[%d]", i)}
		if _, dup := seen[exp.Name]; dup {
			return errors.Validation(errors.KindDuplicateExport, where, "%q", exp.Name)
		}
		seen[exp.Name] = struct{}{}

		var limit uint32
		var kind errors.Kind
		switch exp.Kind {
		case KindFunc:
			limit, kind = numFuncs, errors.KindUnknownFunc
		case KindTable:
			limit, kind = numTables, errors.KindUnknownTable
		case KindMemory:
			limit, kind = numMemories, errors.KindUnknownMemory
		case KindGlobal:
			limit, kind = numGlobals, errors.KindUnknownGlobal
		}
		if exp.Idx >= limit {
			return errors.Validation(kind, where,
				"%q references index %d (have %d)", exp.Name, exp.Idx, limit)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return errors.Validation(errors.KindUnknownFunc, []string{"start"},
			"function index %d out of range", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return errors.Validation(errors.KindInvalidStartType, []string{"start"},
			"start function must have type [] -> []")
	}
	return nil
}

func (m *Module) validateSegments() error {
	numFuncs := uint32(m.NumImportedFuncs() + len(m.Funcs))
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numMemories := uint32(m.NumImportedMemories() + len(m.Memories))

	for i, elem := range m.Elements {
		where := []string{fmt.Sprintf("elem[%d]", i)}
		if elem.IsActive() && elem.TableIdx >= numTables {
			return errors.Validation(errors.KindUnknownTable, where,
				"table index %d", elem.TableIdx)
		}
		for _, fi := range elem.FuncIdxs {
			if fi >= numFuncs {
				return errors.Validation(errors.KindUnknownFunc, where,
					"function index %d (have %d)", fi, numFuncs)
			}
		}
	}
	for i, d := range m.Data {
		if d.IsActive() && d.MemIdx >= numMemories {
			return errors.Validation(errors.KindUnknownMemory,
				[]string{fmt.Sprintf("data[%d]", i)}, "memory index %d", d.MemIdx)
		}
	}
	return nil
}
