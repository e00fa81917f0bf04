package linker

import (
	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// resolveImports looks up every import in the store's registered modules and
// appends the resolved addresses to the instance's per-kind index tables, so
// that imports occupy the low indices.
func resolveImports(s *engine.Store, module *wasm.Module, inst *engine.ModuleInstance) error {
	for _, imp := range module.Imports {
		expModAddr, ok := s.FindModule(imp.Module)
		if !ok {
			return errors.Link(errors.KindUnknownImport, "module %q", imp.Module)
		}
		expMod := s.GetModule(expModAddr)
		ref, ok := expMod.Export(imp.Name)
		if !ok {
			return errors.Link(errors.KindUnknownImport, "%s.%s", imp.Module, imp.Name)
		}
		if ref.Kind != imp.Desc.Kind {
			return errors.Link(errors.KindIncompatibleImportType,
				"%s.%s: kind mismatch", imp.Module, imp.Name)
		}

		switch imp.Desc.Kind {
		case wasm.KindFunc:
			fnAddr := expMod.FuncAddrs[ref.Idx]
			fn := s.GetFunction(fnAddr)
			want := module.Types[imp.Desc.TypeIdx]
			if !fn.Type.Equal(want) {
				return errors.Link(errors.KindIncompatibleImportType,
					"%s.%s: function type mismatch", imp.Module, imp.Name)
			}
			inst.FuncAddrs = append(inst.FuncAddrs, fnAddr)

		case wasm.KindTable:
			tblAddr := expMod.TableAddrs[ref.Idx]
			tbl := s.GetTable(tblAddr)
			want := imp.Desc.Table
			if tbl.ElemType != want.ElemType {
				return errors.Link(errors.KindIncompatibleImportType,
					"%s.%s: element type mismatch", imp.Module, imp.Name)
			}
			if !limitsSatisfy(want.Limits, tbl.Size(), tbl.Limits.Max) {
				return errors.Link(errors.KindIncompatibleImportType,
					"%s.%s: table limits", imp.Module, imp.Name)
			}
			inst.TableAddrs = append(inst.TableAddrs, tblAddr)

		case wasm.KindMemory:
			memAddr := expMod.MemAddrs[ref.Idx]
			mem := s.GetMemory(memAddr)
			want := imp.Desc.Memory
			if !limitsSatisfy(want.Limits, mem.Pages(), mem.Limits.Max) {
				return errors.Link(errors.KindIncompatibleImportType,
					"%s.%s: memory limits", imp.Module, imp.Name)
			}
			inst.MemAddrs = append(inst.MemAddrs, memAddr)

		case wasm.KindGlobal:
			glbAddr := expMod.GlobalAddrs[ref.Idx]
			glb := s.GetGlobal(glbAddr)
			want := imp.Desc.Global
			if glb.Type.ValType != want.ValType || glb.Type.Mutable != want.Mutable {
				return errors.Link(errors.KindIncompatibleImportType,
					"%s.%s: global type mismatch", imp.Module, imp.Name)
			}
			inst.GlobalAddrs = append(inst.GlobalAddrs, glbAddr)
		}
	}
	return nil
}

// limitsSatisfy reports whether an exported entity with the given current
// size and declared maximum satisfies the importer's limits: the importer's
// minimum must not exceed what the exporter provides, and when the importer
// declares a maximum the exporter must be bounded by it.
func limitsSatisfy(want wasm.Limits, haveMin uint32, haveMax *uint32) bool {
	if haveMin < want.Min {
		return false
	}
	if want.Max != nil {
		if haveMax == nil || *haveMax > *want.Max {
			return false
		}
	}
	return true
}
