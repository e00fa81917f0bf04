package wasm_test

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

func wantValidationKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Phase != errors.PhaseValidate || e.Kind != kind {
		t.Fatalf("expected validate/%s, got %s/%s: %v", kind, e.Phase, e.Kind, err)
	}
}

func validModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpLocalGet, 0x01, wasm.OpI32Add, wasm.OpEnd}},
		},
		Exports: []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Idx: 0}},
	}
}

func TestValidateAddModule(t *testing.T) {
	if err := validModule().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateUnknownTypeIndex(t *testing.T) {
	m := validModule()
	m.Funcs[0] = 7
	wantValidationKind(t, m.Validate(), errors.KindUnknownType)
}

func TestValidateBodyTypeMismatch(t *testing.T) {
	m := validModule()
	// i64.const where an i32 operand is needed by i32.add.
	m.Code[0].Code = []byte{wasm.OpLocalGet, 0x00, wasm.OpI64Const, 0x01, wasm.OpI32Add, wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateStackUnderflow(t *testing.T) {
	m := validModule()
	m.Code[0].Code = []byte{wasm.OpI32Add, wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateMissingResult(t *testing.T) {
	m := validModule()
	m.Code[0].Code = []byte{wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateUnknownLocal(t *testing.T) {
	m := validModule()
	m.Code[0].Code = []byte{wasm.OpLocalGet, 0x05, wasm.OpLocalGet, 0x01, wasm.OpI32Add, wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindUnknownLocal)
}

func TestValidateUnknownLabel(t *testing.T) {
	m := validModule()
	m.Code[0].Code = []byte{wasm.OpBr, 0x05, wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindUnknownLabel)
}

func TestValidateUnreachablePolymorphism(t *testing.T) {
	m := validModule()
	// unreachable makes the rest of the block polymorphic; this must pass.
	m.Code[0].Code = []byte{wasm.OpUnreachable, wasm.OpI32Add, wasm.OpEnd}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateImmutableGlobalStore(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32},
				Init: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}},
		},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpI32Const, 0x01, wasm.OpGlobalSet, 0x00, wasm.OpEnd}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindImmutableGlobalStore)
}

func TestValidateDuplicateExport(t *testing.T) {
	m := validModule()
	m.Exports = append(m.Exports, wasm.Export{Name: "add", Kind: wasm.KindFunc, Idx: 0})
	wantValidationKind(t, m.Validate(), errors.KindDuplicateExport)
}

func TestValidateExportIndexRange(t *testing.T) {
	m := validModule()
	m.Exports[0].Idx = 3
	wantValidationKind(t, m.Validate(), errors.KindUnknownFunc)
}

func TestValidateInvalidStartType(t *testing.T) {
	m := validModule()
	m.Start = ptrTo(uint32(0)) // add has params and a result
	wantValidationKind(t, m.Validate(), errors.KindInvalidStartType)
}

func TestValidateMemoryPageLimit(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 65537}}},
	}
	wantValidationKind(t, m.Validate(), errors.KindUnknownMemory)
}

func TestValidateMemoryAccessWithoutMemory(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpI32Const, 0x00, wasm.OpI32Load, 0x02, 0x00, wasm.OpEnd}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindUnknownMemory)
}

func TestValidateInvalidAlignment(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code: []wasm.FuncBody{
			// align=3 (8 bytes) on a 4-byte load.
			{Code: []byte{wasm.OpI32Const, 0x00, wasm.OpI32Load, 0x03, 0x00, wasm.OpEnd}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindInvalidAlignment)
}

func TestValidateBrTableArityMismatch(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{
				wasm.OpBlock, 0x7F, // result i32
				wasm.OpBlock, 0x40, // void
				wasm.OpI32Const, 0x00,
				wasm.OpI32Const, 0x00,
				wasm.OpBrTable, 0x01, 0x00, 0x01, // targets with arity 0 and 1
				wasm.OpEnd,
				wasm.OpI32Const, 0x00,
				wasm.OpEnd,
				wasm.OpEnd,
			}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateIfWithoutElseNeedsBalancedType(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{
				wasm.OpI32Const, 0x01,
				wasm.OpIf, 0x7F, // (if (result i32)) with no else
				wasm.OpI32Const, 0x02,
				wasm.OpEnd,
				wasm.OpEnd,
			}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateCallSignature(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI64}, Results: []wasm.ValType{wasm.ValI64}},
			{Results: []wasm.ValType{wasm.ValI64}},
		},
		Funcs: []uint32{0, 1},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpEnd}},
			{Code: []byte{wasm.OpI64Const, 0x07, wasm.OpCall, 0x00, wasm.OpEnd}},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// Calling with the wrong operand type fails.
	m.Code[1].Code = []byte{wasm.OpI32Const, 0x07, wasm.OpCall, 0x00, wasm.OpEnd}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateGlobalInitializerType(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32},
				Init: []byte{wasm.OpI64Const, 0x01, wasm.OpEnd}},
		},
	}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}

func TestValidateMultipleResultsRejected(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32, wasm.ValI32}}},
	}
	wantValidationKind(t, m.Validate(), errors.KindTypeMismatch)
}
