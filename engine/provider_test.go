package engine

import (
	"testing"

	"github.com/wippyai/wasm-vm/wasm"
)

func TestAnalyzeBranchTargets(t *testing.T) {
	code := []byte{
		wasm.OpBlock, 0x40, // 0
		wasm.OpLoop, 0x40, // 1
		wasm.OpNop,  // 2
		wasm.OpEnd,  // 3 (loop)
		wasm.OpEnd,  // 4 (block)
		wasm.OpEnd,  // 5 (function)
	}
	c, err := analyze(code)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(c.Instrs) != 6 {
		t.Fatalf("instrs: %d", len(c.Instrs))
	}
	if c.EndOf[0] != 5 {
		t.Errorf("block end: %d", c.EndOf[0])
	}
	if c.EndOf[1] != 4 {
		t.Errorf("loop end: %d", c.EndOf[1])
	}
}

func TestAnalyzeIfElse(t *testing.T) {
	code := []byte{
		wasm.OpI32Const, 0x01, // 0
		wasm.OpIf, 0x40, // 1
		wasm.OpNop,  // 2
		wasm.OpElse, // 3
		wasm.OpNop,  // 4
		wasm.OpEnd,  // 5
		wasm.OpEnd,  // 6
	}
	c, err := analyze(code)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if c.ElseOf[1] != 4 {
		t.Errorf("else target: %d", c.ElseOf[1])
	}
	if c.EndOf[1] != 6 {
		t.Errorf("end target: %d", c.EndOf[1])
	}
}

func TestAnalyzeIfWithoutElse(t *testing.T) {
	code := []byte{
		wasm.OpI32Const, 0x00, // 0
		wasm.OpIf, 0x40, // 1
		wasm.OpNop, // 2
		wasm.OpEnd, // 3
		wasm.OpEnd, // 4
	}
	c, err := analyze(code)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// The false arm lands on the end itself so the label is popped there.
	if c.ElseOf[1] != 3 {
		t.Errorf("else target: %d", c.ElseOf[1])
	}
	if c.EndOf[1] != 4 {
		t.Errorf("end target: %d", c.EndOf[1])
	}
}

func TestProviderCachesAndResets(t *testing.T) {
	p := NewProvider()
	f := &FunctionInstance{
		Type: wasm.FuncType{},
		Body: []byte{wasm.OpNop, wasm.OpEnd},
	}
	c1, err := p.Code(f)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	c2, _ := p.Code(f)
	if c1 != c2 {
		t.Error("expected cached code on second lookup")
	}
	p.Reset()
	c3, _ := p.Code(f)
	if c1 == c3 {
		t.Error("expected fresh decode after Reset")
	}
}
