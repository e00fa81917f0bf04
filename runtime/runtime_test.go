package runtime_test

import (
	"math"
	"testing"

	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/linker"
	"github.com/wippyai/wasm-vm/runtime"
	"github.com/wippyai/wasm-vm/wasm"
)

func ptrTo[T any](v T) *T { return &v }

func wantTrap(t *testing.T, err error, code errors.TrapCode) {
	t.Helper()
	trap := errors.AsTrap(err)
	if trap == nil {
		t.Fatalf("expected trap %s, got %v", code, err)
	}
	if trap.Code != code {
		t.Fatalf("expected trap %s, got %s", code, trap.Code)
	}
}

func instantiate(t *testing.T, rt *runtime.Runtime, m *wasm.Module, name string) {
	t.Helper()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := rt.Instantiate(m, name, linker.ModeInstantiate); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
}

// exportFunc builds a single-function module exporting fn under name.
func exportFunc(name string, ft wasm.FuncType, locals []wasm.LocalEntry, code ...byte) *wasm.Module {
	return &wasm.Module{
		Types:   []wasm.FuncType{ft},
		Funcs:   []uint32{0},
		Code:    []wasm.FuncBody{{Locals: locals, Code: code}},
		Exports: []wasm.Export{{Name: name, Kind: wasm.KindFunc, Idx: 0}},
	}
}

func TestInvokeAdd(t *testing.T) {
	rt := runtime.New()
	m := exportFunc("add",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil,
		wasm.OpLocalGet, 0x00, wasm.OpLocalGet, 0x01, wasm.OpI32Add, wasm.OpEnd)
	instantiate(t, rt, m, "calc")

	results, err := rt.Invoke("calc", "add", int32(2), int32(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(results) != 1 || results[0].I32() != 5 {
		t.Errorf("add(2,3) = %v", results)
	}
}

func TestMemoryLoadAtPageEdge(t *testing.T) {
	// (memory 1) (data (i32.const 65530) "hello\00") plus a load8_u helper.
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpI32Load8U, 0x00, 0x00, wasm.OpEnd}},
		},
		Exports: []wasm.Export{{Name: "load8", Kind: wasm.KindFunc, Idx: 0}},
		Data: []wasm.DataSegment{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0xFA, 0xFF, 0x03, wasm.OpEnd},
				Init: []byte("hello\x00")},
		},
	}
	rt := runtime.New()
	instantiate(t, rt, m, "mem")

	results, err := rt.Invoke("mem", "load8", int32(65535))
	if err != nil {
		t.Fatalf("load8(65535): %v", err)
	}
	if results[0].I32() != 0 {
		t.Errorf("load8(65535) = %d", results[0].I32())
	}

	results, err = rt.Invoke("mem", "load8", int32(65530))
	if err != nil || results[0].I32() != 'h' {
		t.Errorf("load8(65530) = %v, %v", results, err)
	}

	_, err = rt.Invoke("mem", "load8", int32(65536))
	wantTrap(t, err, errors.TrapOutOfBoundsMemoryAccess)
}

func TestDivSOverflowTraps(t *testing.T) {
	rt := runtime.New()
	m := exportFunc("div",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil,
		wasm.OpLocalGet, 0x00, wasm.OpLocalGet, 0x01, wasm.OpI32DivS, wasm.OpEnd)
	instantiate(t, rt, m, "calc")

	_, err := rt.Invoke("calc", "div", int32(math.MinInt32), int32(-1))
	wantTrap(t, err, errors.TrapIntegerOverflow)

	_, err = rt.Invoke("calc", "div", int32(1), int32(0))
	wantTrap(t, err, errors.TrapIntegerDivideByZero)

	results, err := rt.Invoke("calc", "div", int32(-6), int32(2))
	if err != nil || results[0].I32() != -3 {
		t.Errorf("div(-6,2) = %v, %v", results, err)
	}
}

func TestConvertI32UToF32(t *testing.T) {
	rt := runtime.New()
	m := exportFunc("cvt",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValF32}},
		nil,
		wasm.OpLocalGet, 0x00, wasm.OpF32ConvertI32U, wasm.OpEnd)
	instantiate(t, rt, m, "calc")

	results, err := rt.Invoke("calc", "cvt", int32(-1)) // 0xFFFFFFFF
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if results[0].F32() != 4294967296.0 {
		t.Errorf("f32.convert_i32_u(0xFFFFFFFF) = %v", results[0].F32())
	}
}

func TestControlFlowLoop(t *testing.T) {
	// sum(n): loop accumulating 1..n using two locals.
	code := []byte{
		wasm.OpBlock, 0x40,
		wasm.OpLoop, 0x40,
		// if n == 0 break
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Eqz,
		wasm.OpBrIf, 0x01,
		// acc += n
		wasm.OpLocalGet, 0x01,
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Add,
		wasm.OpLocalSet, 0x01,
		// n -= 1
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Const, 0x01,
		wasm.OpI32Sub,
		wasm.OpLocalSet, 0x00,
		wasm.OpBr, 0x00,
		wasm.OpEnd,
		wasm.OpEnd,
		wasm.OpLocalGet, 0x01,
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("sum",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		[]wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}},
		code...)
	instantiate(t, rt, m, "calc")

	results, err := rt.Invoke("calc", "sum", int32(10))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if results[0].I32() != 55 {
		t.Errorf("sum(10) = %d", results[0].I32())
	}
}

func TestControlFlowIfElse(t *testing.T) {
	code := []byte{
		wasm.OpLocalGet, 0x00,
		wasm.OpIf, 0x7F,
		wasm.OpI32Const, 0x01,
		wasm.OpElse,
		wasm.OpI32Const, 0x02,
		wasm.OpEnd,
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("pick",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, code...)
	instantiate(t, rt, m, "calc")

	if r, _ := rt.Invoke("calc", "pick", int32(5)); r[0].I32() != 1 {
		t.Errorf("pick(5) = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("calc", "pick", int32(0)); r[0].I32() != 2 {
		t.Errorf("pick(0) = %d", r[0].I32())
	}
}

func TestBrTable(t *testing.T) {
	// case 0 -> 10, case 1 -> 20, default -> 30
	code := []byte{
		wasm.OpBlock, 0x40,
		wasm.OpBlock, 0x40,
		wasm.OpBlock, 0x40,
		wasm.OpLocalGet, 0x00,
		wasm.OpBrTable, 0x02, 0x00, 0x01, 0x02,
		wasm.OpEnd,
		wasm.OpI32Const, 0x0A,
		wasm.OpReturn,
		wasm.OpEnd,
		wasm.OpI32Const, 0x14,
		wasm.OpReturn,
		wasm.OpEnd,
		wasm.OpI32Const, 0x1E,
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("sel",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, code...)
	instantiate(t, rt, m, "calc")

	cases := map[int32]int32{0: 10, 1: 20, 2: 30, 99: 30, -1: 30}
	for in, want := range cases {
		r, err := rt.Invoke("calc", "sel", in)
		if err != nil {
			t.Fatalf("sel(%d): %v", in, err)
		}
		if r[0].I32() != want {
			t.Errorf("sel(%d) = %d, want %d", in, r[0].I32(), want)
		}
	}
}

func TestCallIndirect(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Results: []wasm.ValType{wasm.ValI32}},                                  // type 0
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}, // type 1
		},
		Funcs:  []uint32{0, 0, 1},
		Tables: []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 4}}},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpI32Const, 0x0A, wasm.OpEnd}},
			{Code: []byte{wasm.OpI32Const, 0x14, wasm.OpEnd}},
			// dispatch(i): call_indirect (type 0) through table slot i
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpCallIndirect, 0x00, 0x00, wasm.OpEnd}},
		},
		Elements: []wasm.Element{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}, FuncIdxs: []uint32{0, 1, 2}},
		},
		Exports: []wasm.Export{{Name: "dispatch", Kind: wasm.KindFunc, Idx: 2}},
	}
	rt := runtime.New()
	instantiate(t, rt, m, "tbl")

	if r, err := rt.Invoke("tbl", "dispatch", int32(0)); err != nil || r[0].I32() != 10 {
		t.Errorf("dispatch(0) = %v, %v", r, err)
	}
	if r, err := rt.Invoke("tbl", "dispatch", int32(1)); err != nil || r[0].I32() != 20 {
		t.Errorf("dispatch(1) = %v, %v", r, err)
	}

	// Slot 2 holds a function of the wrong type.
	_, err := rt.Invoke("tbl", "dispatch", int32(2))
	wantTrap(t, err, errors.TrapIndirectCallTypeMismatch)

	// Slot 3 is uninitialized.
	_, err = rt.Invoke("tbl", "dispatch", int32(3))
	wantTrap(t, err, errors.TrapUninitializedElement)

	// Slot 4 is out of bounds.
	_, err = rt.Invoke("tbl", "dispatch", int32(4))
	wantTrap(t, err, errors.TrapOutOfBoundsTableAccess)
}

func TestMemoryGrow(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:    []uint32{0, 1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: ptrTo(uint32(3))}}},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpMemoryGrow, 0x00, wasm.OpEnd}},
			{Code: []byte{wasm.OpMemorySize, 0x00, wasm.OpEnd}},
		},
		Exports: []wasm.Export{
			{Name: "grow", Kind: wasm.KindFunc, Idx: 0},
			{Name: "size", Kind: wasm.KindFunc, Idx: 1},
		},
	}
	rt := runtime.New()
	instantiate(t, rt, m, "mem")

	if r, _ := rt.Invoke("mem", "size"); r[0].I32() != 1 {
		t.Errorf("size = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("mem", "grow", int32(1)); r[0].I32() != 1 {
		t.Errorf("grow(1) = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("mem", "grow", int32(5)); r[0].I32() != -1 {
		t.Errorf("grow(5) past max = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("mem", "size"); r[0].I32() != 2 {
		t.Errorf("size after failed grow = %d", r[0].I32())
	}
}

func TestHostFunction(t *testing.T) {
	rt := runtime.New()
	var logged []int32
	err := rt.NewHostModule("env").
		AddFunc("log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
			func(args []engine.Value) ([]engine.Value, error) {
				logged = append(logged, args[0].I32())
				return nil, nil
			}).
		AddFunc("seven", wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
			func(args []engine.Value) ([]engine.Value, error) {
				return []engine.Value{engine.I32Value(7)}, nil
			}).
		Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "seven", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 1}},
		},
		Funcs: []uint32{1},
		Code: []wasm.FuncBody{
			// run(): log(42); return seven()
			{Code: []byte{
				wasm.OpI32Const, 0x2A,
				wasm.OpCall, 0x00,
				wasm.OpCall, 0x01,
				wasm.OpEnd,
			}},
		},
		Exports: []wasm.Export{{Name: "run", Kind: wasm.KindFunc, Idx: 2}},
	}
	instantiate(t, rt, m, "app")

	results, err := rt.Invoke("app", "run")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if results[0].I32() != 7 {
		t.Errorf("run() = %d", results[0].I32())
	}
	if len(logged) != 1 || logged[0] != 42 {
		t.Errorf("host log calls: %v", logged)
	}
}

func TestHostFunctionErrorBecomesTrap(t *testing.T) {
	rt := runtime.New()
	err := rt.NewHostModule("env").
		AddFunc("fail", wasm.FuncType{},
			func(args []engine.Value) ([]engine.Value, error) {
				return nil, errors.InvalidInput(errors.PhaseExec, "host failure")
			}).
		Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "env", Name: "fail", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:   []uint32{0},
		Code:    []wasm.FuncBody{{Code: []byte{wasm.OpCall, 0x00, wasm.OpEnd}}},
		Exports: []wasm.Export{{Name: "run", Kind: wasm.KindFunc, Idx: 1}},
	}
	instantiate(t, rt, m, "app")

	_, err = rt.Invoke("app", "run")
	wantTrap(t, err, errors.TrapHost)
}

func TestCallStackExhausted(t *testing.T) {
	rt := runtime.New(runtime.WithMaxCallDepth(64))
	// Infinite self-recursion.
	m := exportFunc("spin", wasm.FuncType{}, nil, wasm.OpCall, 0x00, wasm.OpEnd)
	instantiate(t, rt, m, "rec")

	_, err := rt.Invoke("rec", "spin")
	wantTrap(t, err, errors.TrapCallStackExhausted)
}

func TestUnreachableTrap(t *testing.T) {
	rt := runtime.New()
	m := exportFunc("boom", wasm.FuncType{}, nil, wasm.OpUnreachable, wasm.OpEnd)
	instantiate(t, rt, m, "t")
	_, err := rt.Invoke("t", "boom")
	wantTrap(t, err, errors.TrapUnreachable)
}

func TestInvokeDeterminism(t *testing.T) {
	rt := runtime.New()
	// Mixes float arithmetic that lands on NaN: (0/0) min 1.0, reinterpreted.
	code := []byte{
		wasm.OpF64Const, 0, 0, 0, 0, 0, 0, 0, 0, // 0.0
		wasm.OpF64Const, 0, 0, 0, 0, 0, 0, 0, 0, // 0.0
		wasm.OpF64Div,
		wasm.OpF64Const, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F, // 1.0
		wasm.OpF64Min,
		wasm.OpI64ReinterpretF64,
		wasm.OpEnd,
	}
	m := exportFunc("nanbits",
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}, nil, code...)
	instantiate(t, rt, m, "det")

	first, err := rt.Invoke("det", "nanbits")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if uint64(first[0].I64()) != 0x7FF8000000000000 {
		t.Errorf("canonical NaN bits: %#x", uint64(first[0].I64()))
	}
	for i := 0; i < 10; i++ {
		again, err := rt.Invoke("det", "nanbits")
		if err != nil || again[0].I64() != first[0].I64() {
			t.Fatalf("run %d differs: %v, %v", i, again, err)
		}
	}
}

func TestGlobalsAcrossInvocations(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
				Init: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}},
		},
		Code: []wasm.FuncBody{
			// counter: global += 1; return global
			{Code: []byte{
				wasm.OpGlobalGet, 0x00,
				wasm.OpI32Const, 0x01,
				wasm.OpI32Add,
				wasm.OpGlobalSet, 0x00,
				wasm.OpGlobalGet, 0x00,
				wasm.OpEnd,
			}},
		},
		Exports: []wasm.Export{{Name: "next", Kind: wasm.KindFunc, Idx: 0}},
	}
	rt := runtime.New()
	instantiate(t, rt, m, "ctr")

	for want := int32(1); want <= 3; want++ {
		r, err := rt.Invoke("ctr", "next")
		if err != nil || r[0].I32() != want {
			t.Fatalf("next() = %v, %v (want %d)", r, err, want)
		}
	}
}

func TestMemoryMaxPagesOption(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpMemoryGrow, 0x00, wasm.OpEnd}},
		},
		Exports: []wasm.Export{{Name: "grow", Kind: wasm.KindFunc, Idx: 0}},
	}
	rt := runtime.New(runtime.WithMemoryMaxPages(2))
	instantiate(t, rt, m, "mem")

	if r, _ := rt.Invoke("mem", "grow", int32(1)); r[0].I32() != 1 {
		t.Errorf("grow under cap = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("mem", "grow", int32(1)); r[0].I32() != -1 {
		t.Errorf("grow past cap = %d", r[0].I32())
	}
}

func TestSelectAndParametric(t *testing.T) {
	code := []byte{
		wasm.OpI32Const, 0x0A,
		wasm.OpI32Const, 0x14,
		wasm.OpLocalGet, 0x00,
		wasm.OpSelect,
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("choose",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, code...)
	instantiate(t, rt, m, "calc")

	if r, _ := rt.Invoke("calc", "choose", int32(1)); r[0].I32() != 10 {
		t.Errorf("choose(1) = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("calc", "choose", int32(0)); r[0].I32() != 20 {
		t.Errorf("choose(0) = %d", r[0].I32())
	}
}

func TestIfWithoutElse(t *testing.T) {
	// abs-ish: negate the local when it is negative, no else arm.
	code := []byte{
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Const, 0x00,
		wasm.OpI32LtS,
		wasm.OpIf, 0x40,
		wasm.OpI32Const, 0x00,
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Sub,
		wasm.OpLocalSet, 0x00,
		wasm.OpEnd,
		wasm.OpLocalGet, 0x00,
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("abs",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, code...)
	instantiate(t, rt, m, "calc")

	if r, _ := rt.Invoke("calc", "abs", int32(-9)); r[0].I32() != 9 {
		t.Errorf("abs(-9) = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("calc", "abs", int32(4)); r[0].I32() != 4 {
		t.Errorf("abs(4) = %d", r[0].I32())
	}
}

func TestTruncSatMisc(t *testing.T) {
	code := []byte{
		wasm.OpLocalGet, 0x00,
		wasm.OpPrefixMisc, 0x02, // i32.trunc_sat_f64_s
		wasm.OpEnd,
	}
	rt := runtime.New()
	m := exportFunc("sat",
		wasm.FuncType{Params: []wasm.ValType{wasm.ValF64}, Results: []wasm.ValType{wasm.ValI32}},
		nil, code...)
	instantiate(t, rt, m, "calc")

	if r, _ := rt.Invoke("calc", "sat", 1e300); r[0].I32() != math.MaxInt32 {
		t.Errorf("sat(1e300) = %d", r[0].I32())
	}
	if r, _ := rt.Invoke("calc", "sat", math.NaN()); r[0].I32() != 0 {
		t.Errorf("sat(NaN) = %d", r[0].I32())
	}
}
