package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadU32(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		want  uint32
		isErr bool
	}{
		{name: "zero", data: []byte{0x00}, want: 0},
		{name: "one byte", data: []byte{0x7F}, want: 127},
		{name: "two bytes", data: []byte{0x80, 0x01}, want: 128},
		{name: "max", data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}, want: 0xFFFFFFFF},
		{name: "non-minimal zero", data: []byte{0x80, 0x00}, want: 0},
		{name: "overflow high bits", data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, isErr: true},
		{name: "too long", data: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, isErr: true},
		{name: "truncated", data: []byte{0x80}, isErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			got, err := r.ReadU32()
			if tt.isErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadU32: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadS32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int32
	}{
		{name: "zero", data: []byte{0x00}, want: 0},
		{name: "positive", data: []byte{0x3F}, want: 63},
		{name: "negative one", data: []byte{0x7F}, want: -1},
		{name: "minus 64", data: []byte{0x40}, want: -64},
		{name: "multi byte negative", data: []byte{0xC0, 0xBB, 0x78}, want: -123456},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			got, err := r.ReadS32()
			if err != nil {
				t.Fatalf("ReadS32: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadS64SignExtension(t *testing.T) {
	w := NewWriter()
	w.WriteS64(-987654321)
	r := NewReader(w.Bytes())
	got, err := r.ReadS64()
	if err != nil {
		t.Fatalf("ReadS64: %v", err)
	}
	if got != -987654321 {
		t.Errorf("got %d", got)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1234567)
	w.WriteS32(-42)
	w.WriteName("memory")
	w.WriteU32LE(0x6D736100)
	w.WriteF32(3.5)
	w.WriteF64(-2.25)

	r := NewReader(w.Bytes())
	if v, _ := r.ReadU32(); v != 1234567 {
		t.Errorf("u32: got %d", v)
	}
	if v, _ := r.ReadS32(); v != -42 {
		t.Errorf("s32: got %d", v)
	}
	if v, _ := r.ReadName(); v != "memory" {
		t.Errorf("name: got %q", v)
	}
	if v, _ := r.ReadU32LE(); v != 0x6D736100 {
		t.Errorf("u32le: got %#x", v)
	}
	if v, _ := r.ReadF32(); v != 3.5 {
		t.Errorf("f32: got %v", v)
	}
	if v, _ := r.ReadF64(); v != -2.25 {
		t.Errorf("f64: got %v", v)
	}
}

func TestReadNameInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xFF, 0xFE})
	_, err := r.ReadName()
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestPositionAndReset(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	if _, err := r.ReadBytes(2); err != nil {
		t.Fatal(err)
	}
	if r.Position() != 2 {
		t.Errorf("position: got %d", r.Position())
	}
	if err := r.Reset(1); err != nil {
		t.Fatal(err)
	}
	b, err := r.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 2 {
		t.Errorf("after reset: got %d", b)
	}
}

func TestReadBytesTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadBytes(5); err == nil {
		t.Fatal("expected error for short read")
	}
}

func TestWriterS32Boundaries(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, 64, -64, -65, 8191, -8192, 2147483647, -2147483648} {
		w := NewWriter()
		w.WriteS32(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadS32()
		if err != nil {
			t.Fatalf("%d: %v", v, err)
		}
		if got != v {
			t.Errorf("round-trip %d: got %d", v, got)
		}
	}
}

func TestReadRemaining(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rest, []byte{2, 3}) {
		t.Errorf("got %v", rest)
	}
}
