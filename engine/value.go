package engine

import (
	"fmt"
	"math"

	"github.com/wippyai/wasm-vm/wasm"
)

// Value is a tagged operand: a raw 64-bit payload carrying its value type.
// Integers are stored directly, floats by their IEEE 754 bit pattern.
type Value struct {
	Raw  uint64
	Type wasm.ValType
}

// I32Value creates an i32 operand.
func I32Value(v int32) Value {
	return Value{Raw: uint64(uint32(v)), Type: wasm.ValI32}
}

// I64Value creates an i64 operand.
func I64Value(v int64) Value {
	return Value{Raw: uint64(v), Type: wasm.ValI64}
}

// F32Value creates an f32 operand.
func F32Value(v float32) Value {
	return Value{Raw: uint64(math.Float32bits(v)), Type: wasm.ValF32}
}

// F64Value creates an f64 operand.
func F64Value(v float64) Value {
	return Value{Raw: math.Float64bits(v), Type: wasm.ValF64}
}

// I32 returns the payload as an int32.
func (v Value) I32() int32 {
	return int32(uint32(v.Raw))
}

// I64 returns the payload as an int64.
func (v Value) I64() int64 {
	return int64(v.Raw)
}

// F32 returns the payload as a float32.
func (v Value) F32() float32 {
	return math.Float32frombits(uint32(v.Raw))
}

// F64 returns the payload as a float64.
func (v Value) F64() float64 {
	return math.Float64frombits(v.Raw)
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case wasm.ValI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case wasm.ValF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case wasm.ValF64:
		return fmt.Sprintf("f64:%g", v.F64())
	default:
		return fmt.Sprintf("%s:%#x", v.Type, v.Raw)
	}
}

// ZeroValue returns the zero value of the given type.
func ZeroValue(t wasm.ValType) Value {
	return Value{Type: t}
}

// Any converts the value to its natural Go representation.
func (v Value) Any() any {
	switch v.Type {
	case wasm.ValI32:
		return v.I32()
	case wasm.ValI64:
		return v.I64()
	case wasm.ValF32:
		return v.F32()
	case wasm.ValF64:
		return v.F64()
	default:
		return v.Raw
	}
}

// ValueFromAny converts a Go number into a tagged operand. Supported inputs
// are int32, int64, uint32, uint64, int, float32, and float64.
func ValueFromAny(v any) (Value, error) {
	switch n := v.(type) {
	case int32:
		return I32Value(n), nil
	case uint32:
		return I32Value(int32(n)), nil
	case int64:
		return I64Value(n), nil
	case uint64:
		return I64Value(int64(n)), nil
	case int:
		return I64Value(int64(n)), nil
	case float32:
		return F32Value(n), nil
	case float64:
		return F64Value(n), nil
	case Value:
		return n, nil
	default:
		return Value{}, fmt.Errorf("unsupported argument type %T", v)
	}
}
