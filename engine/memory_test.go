package engine

import (
	"testing"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

func newTestMemory(minPages uint32, maxPages *uint32) *MemoryInstance {
	return NewMemoryInstance(wasm.MemoryType{
		Limits: wasm.Limits{Min: minPages, Max: maxPages},
	}, 0)
}

func TestMemoryReadWrite(t *testing.T) {
	m := newTestMemory(1, nil)
	if err := m.WriteUint32(8, 0, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	v, err := m.ReadUint32(8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("got %#x", v)
	}

	b, err := m.ReadByte(8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b != 0xEF {
		t.Errorf("little-endian low byte: %#x", b)
	}
}

func TestMemoryBoundsEdge(t *testing.T) {
	m := newTestMemory(1, nil)

	// Last valid byte.
	if err := m.WriteByte(65535, 0, 0xAA); err != nil {
		t.Fatalf("in-bounds write: %v", err)
	}
	if _, err := m.ReadByte(65535, 0); err != nil {
		t.Fatalf("in-bounds read: %v", err)
	}

	// One past the end.
	_, err := m.ReadByte(65536, 0)
	trap := errors.AsTrap(err)
	if trap == nil || trap.Code != errors.TrapOutOfBoundsMemoryAccess {
		t.Fatalf("expected OOB trap, got %v", err)
	}

	// Wide access straddling the end.
	if _, err := m.ReadUint32(65533, 0); errors.AsTrap(err) == nil {
		t.Fatal("expected OOB trap for straddling read")
	}

	// Offset wraparound must not bypass the check.
	if _, err := m.ReadByte(0xFFFFFFFF, 0xFFFFFFFF); errors.AsTrap(err) == nil {
		t.Fatal("expected OOB trap for wrapped address")
	}
}

func TestMemoryFailedWriteLeavesMemoryUnchanged(t *testing.T) {
	m := newTestMemory(1, nil)
	if err := m.WriteByte(100, 0, 0x55); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteUint64(65532, 0, 0x1122334455667788); err == nil {
		t.Fatal("expected OOB")
	}
	v, _ := m.ReadByte(100, 0)
	if v != 0x55 {
		t.Errorf("memory changed by failed write: %#x", v)
	}
	if v, _ := m.ReadUint32(65532, 0); v != 0 {
		t.Errorf("partial write happened: %#x", v)
	}
}

func TestMemoryGrow(t *testing.T) {
	m := newTestMemory(1, ptrTo(uint32(3)))
	if old := m.Grow(1); old != 1 {
		t.Errorf("grow: %d", old)
	}
	if m.Pages() != 2 {
		t.Errorf("pages: %d", m.Pages())
	}
	if old := m.Grow(2); old != -1 {
		t.Errorf("over-max grow returned %d", old)
	}
	if m.Pages() != 2 {
		t.Errorf("failed grow changed size: %d", m.Pages())
	}
	if old := m.Grow(1); old != 2 {
		t.Errorf("grow to max: %d", old)
	}
}

func TestMemoryGrowEngineCap(t *testing.T) {
	m := NewMemoryInstance(wasm.MemoryType{Limits: wasm.Limits{Min: 1}}, 2)
	if old := m.Grow(1); old != 1 {
		t.Errorf("grow under cap: %d", old)
	}
	if old := m.Grow(1); old != -1 {
		t.Errorf("grow past engine cap returned %d", old)
	}
}

func TestMemoryFillCopyInit(t *testing.T) {
	m := newTestMemory(1, nil)
	if err := m.Fill(10, 4, 0x7F); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadByte(13, 0); v != 0x7F {
		t.Errorf("fill: %#x", v)
	}
	if err := m.Copy(m, 20, 10, 4); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadByte(23, 0); v != 0x7F {
		t.Errorf("copy: %#x", v)
	}
	if err := m.Init(30, 1, 2, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadByte(31, 0); v != 3 {
		t.Errorf("init: %d", v)
	}
	if err := m.Fill(65530, 100, 0); errors.AsTrap(err) == nil {
		t.Fatal("expected OOB fill to trap")
	}
}

func ptrTo[T any](v T) *T { return &v }
