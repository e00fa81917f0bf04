package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-vm/wasm"
)

// buildArithModule returns a module exercising most sections.
func buildArithModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Funcs:    []uint32{0, 1},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2, Max: ptrTo(uint32(4))}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
				Init: []byte{wasm.OpI32Const, 0x2A, wasm.OpEnd}},
		},
		Exports: []wasm.Export{
			{Name: "add", Kind: wasm.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Elements: []wasm.Element{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}, FuncIdxs: []uint32{0, 1}},
		},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpLocalGet, 0x01, wasm.OpI32Add, wasm.OpEnd}},
			{Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI64}}, Code: []byte{wasm.OpEnd}},
		},
		Data: []wasm.DataSegment{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0x10, wasm.OpEnd}, Init: []byte("hello\x00")},
		},
		CustomSections: []wasm.CustomSection{{Name: "name", Data: []byte{1, 2, 3}}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := buildArithModule()
	encoded := original.Encode()

	parsed, err := wasm.ParseModule(encoded)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	// The golden property: decode then re-encode is byte-identical.
	reencoded := parsed.Encode()
	if !bytes.Equal(encoded, reencoded) {
		t.Fatalf("round-trip bytes differ:\n  first:  %x\n  second: %x", encoded, reencoded)
	}
}

func TestEncodeRoundTripCanonicalBinary(t *testing.T) {
	// A hand-assembled canonical binary: (func (export "answer") (result i32) i32.const 42)
	canonical := concat(header,
		section(wasm.SectionType, 0x01, 0x60, 0x00, 0x01, 0x7F),
		section(wasm.SectionFunction, 0x01, 0x00),
		section(wasm.SectionExport, 0x01, 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00),
		section(wasm.SectionCode, 0x01, 0x04, 0x00, wasm.OpI32Const, 0x2A, wasm.OpEnd),
	)
	parsed, err := wasm.ParseModule(canonical)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if !bytes.Equal(parsed.Encode(), canonical) {
		t.Fatalf("re-encoded bytes differ from canonical input")
	}
}

func TestEncodeEmptyModule(t *testing.T) {
	m := &wasm.Module{}
	if !bytes.Equal(m.Encode(), header) {
		t.Errorf("empty module encoding: %x", m.Encode())
	}
}

func TestEncodePreservesDataCount(t *testing.T) {
	m := &wasm.Module{
		Memories:  []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		DataCount: ptrTo(uint32(1)),
		Data:      []wasm.DataSegment{{Flags: 1, Init: []byte{0xAB}}},
	}
	parsed, err := wasm.ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if parsed.DataCount == nil || *parsed.DataCount != 1 {
		t.Errorf("data count lost: %v", parsed.DataCount)
	}
	if !bytes.Equal(parsed.Encode(), m.Encode()) {
		t.Error("data count round-trip differs")
	}
}

func TestAddTypeReuses(t *testing.T) {
	m := &wasm.Module{}
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	a := m.AddType(ft)
	b := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	if a != b {
		t.Errorf("expected type reuse, got %d and %d", a, b)
	}
	c := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValF64}})
	if c == a {
		t.Error("distinct type should get a fresh index")
	}
}
