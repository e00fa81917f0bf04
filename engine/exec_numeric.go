package engine

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// execSimple dispatches memory accesses and plain numeric instructions.
func (it *Interpreter) execSimple(s *Store, in *wasm.Instruction) error {
	stack := it.stack

	switch in.Opcode {
	// Memory loads. The effective address is the i32 operand (as unsigned)
	// plus the static offset, widened to 64 bits before the bounds check.
	case wasm.OpI32Load:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint32(a, o)
			return I32Value(int32(v)), err
		})
	case wasm.OpI64Load:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint64(a, o)
			return I64Value(int64(v)), err
		})
	case wasm.OpF32Load:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint32(a, o)
			return F32Value(math.Float32frombits(v)), err
		})
	case wasm.OpF64Load:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint64(a, o)
			return F64Value(math.Float64frombits(v)), err
		})
	case wasm.OpI32Load8S:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadByte(a, o)
			return I32Value(int32(int8(v))), err
		})
	case wasm.OpI32Load8U:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadByte(a, o)
			return I32Value(int32(v)), err
		})
	case wasm.OpI32Load16S:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint16(a, o)
			return I32Value(int32(int16(v))), err
		})
	case wasm.OpI32Load16U:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint16(a, o)
			return I32Value(int32(v)), err
		})
	case wasm.OpI64Load8S:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadByte(a, o)
			return I64Value(int64(int8(v))), err
		})
	case wasm.OpI64Load8U:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadByte(a, o)
			return I64Value(int64(v)), err
		})
	case wasm.OpI64Load16S:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint16(a, o)
			return I64Value(int64(int16(v))), err
		})
	case wasm.OpI64Load16U:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint16(a, o)
			return I64Value(int64(v)), err
		})
	case wasm.OpI64Load32S:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint32(a, o)
			return I64Value(int64(int32(v))), err
		})
	case wasm.OpI64Load32U:
		return it.load(s, in, func(m *MemoryInstance, a, o uint32) (Value, error) {
			v, err := m.ReadUint32(a, o)
			return I64Value(int64(v)), err
		})

	// Memory stores.
	case wasm.OpI32Store:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint32(a, o, uint32(v.I32()))
		})
	case wasm.OpI64Store:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint64(a, o, uint64(v.I64()))
		})
	case wasm.OpF32Store:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint32(a, o, math.Float32bits(v.F32()))
		})
	case wasm.OpF64Store:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint64(a, o, math.Float64bits(v.F64()))
		})
	case wasm.OpI32Store8:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteByte(a, o, byte(v.I32()))
		})
	case wasm.OpI32Store16:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint16(a, o, uint16(v.I32()))
		})
	case wasm.OpI64Store8:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteByte(a, o, byte(v.I64()))
		})
	case wasm.OpI64Store16:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint16(a, o, uint16(v.I64()))
		})
	case wasm.OpI64Store32:
		v := stack.Pop()
		return it.store(s, in, func(m *MemoryInstance, a, o uint32) error {
			return m.WriteUint32(a, o, uint32(v.I64()))
		})

	// i32 test and comparison.
	case wasm.OpI32Eqz:
		stack.Push(I32Value(boolToI32(stack.Pop().I32() == 0)))
	case wasm.OpI32Eq:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a == b)))
	case wasm.OpI32Ne:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a != b)))
	case wasm.OpI32LtS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a < b)))
	case wasm.OpI32LtU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(uint32(a) < uint32(b))))
	case wasm.OpI32GtS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a > b)))
	case wasm.OpI32GtU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(uint32(a) > uint32(b))))
	case wasm.OpI32LeS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a <= b)))
	case wasm.OpI32LeU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(uint32(a) <= uint32(b))))
	case wasm.OpI32GeS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(a >= b)))
	case wasm.OpI32GeU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(boolToI32(uint32(a) >= uint32(b))))

	// i64 test and comparison.
	case wasm.OpI64Eqz:
		stack.Push(I32Value(boolToI32(stack.Pop().I64() == 0)))
	case wasm.OpI64Eq:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a == b)))
	case wasm.OpI64Ne:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a != b)))
	case wasm.OpI64LtS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a < b)))
	case wasm.OpI64LtU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(uint64(a) < uint64(b))))
	case wasm.OpI64GtS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a > b)))
	case wasm.OpI64GtU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(uint64(a) > uint64(b))))
	case wasm.OpI64LeS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a <= b)))
	case wasm.OpI64LeU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(uint64(a) <= uint64(b))))
	case wasm.OpI64GeS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(a >= b)))
	case wasm.OpI64GeU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I32Value(boolToI32(uint64(a) >= uint64(b))))

	// Float comparison.
	case wasm.OpF32Eq:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a == b)))
	case wasm.OpF32Ne:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a != b)))
	case wasm.OpF32Lt:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a < b)))
	case wasm.OpF32Gt:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a > b)))
	case wasm.OpF32Le:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a <= b)))
	case wasm.OpF32Ge:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(I32Value(boolToI32(a >= b)))
	case wasm.OpF64Eq:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a == b)))
	case wasm.OpF64Ne:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a != b)))
	case wasm.OpF64Lt:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a < b)))
	case wasm.OpF64Gt:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a > b)))
	case wasm.OpF64Le:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a <= b)))
	case wasm.OpF64Ge:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(I32Value(boolToI32(a >= b)))

	// i32 arithmetic.
	case wasm.OpI32Clz:
		stack.Push(I32Value(int32(bits.LeadingZeros32(uint32(stack.Pop().I32())))))
	case wasm.OpI32Ctz:
		stack.Push(I32Value(int32(bits.TrailingZeros32(uint32(stack.Pop().I32())))))
	case wasm.OpI32Popcnt:
		stack.Push(I32Value(int32(bits.OnesCount32(uint32(stack.Pop().I32())))))
	case wasm.OpI32Add:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a + b))
	case wasm.OpI32Sub:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a - b))
	case wasm.OpI32Mul:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a * b))
	case wasm.OpI32DivS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		r, err := divS32(a, b)
		if err != nil {
			return err
		}
		stack.Push(I32Value(r))
	case wasm.OpI32DivU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		r, err := divU32(uint32(a), uint32(b))
		if err != nil {
			return err
		}
		stack.Push(I32Value(int32(r)))
	case wasm.OpI32RemS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		r, err := remS32(a, b)
		if err != nil {
			return err
		}
		stack.Push(I32Value(r))
	case wasm.OpI32RemU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		r, err := remU32(uint32(a), uint32(b))
		if err != nil {
			return err
		}
		stack.Push(I32Value(int32(r)))
	case wasm.OpI32And:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a & b))
	case wasm.OpI32Or:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a | b))
	case wasm.OpI32Xor:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a ^ b))
	case wasm.OpI32Shl:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a << (uint32(b) % 32)))
	case wasm.OpI32ShrS:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(a >> (uint32(b) % 32)))
	case wasm.OpI32ShrU:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(int32(uint32(a) >> (uint32(b) % 32))))
	case wasm.OpI32Rotl:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(int32(rotl32(uint32(a), b))))
	case wasm.OpI32Rotr:
		b, a := stack.Pop().I32(), stack.Pop().I32()
		stack.Push(I32Value(int32(rotr32(uint32(a), b))))

	// i64 arithmetic.
	case wasm.OpI64Clz:
		stack.Push(I64Value(int64(bits.LeadingZeros64(uint64(stack.Pop().I64())))))
	case wasm.OpI64Ctz:
		stack.Push(I64Value(int64(bits.TrailingZeros64(uint64(stack.Pop().I64())))))
	case wasm.OpI64Popcnt:
		stack.Push(I64Value(int64(bits.OnesCount64(uint64(stack.Pop().I64())))))
	case wasm.OpI64Add:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a + b))
	case wasm.OpI64Sub:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a - b))
	case wasm.OpI64Mul:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a * b))
	case wasm.OpI64DivS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		r, err := divS64(a, b)
		if err != nil {
			return err
		}
		stack.Push(I64Value(r))
	case wasm.OpI64DivU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		r, err := divU64(uint64(a), uint64(b))
		if err != nil {
			return err
		}
		stack.Push(I64Value(int64(r)))
	case wasm.OpI64RemS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		r, err := remS64(a, b)
		if err != nil {
			return err
		}
		stack.Push(I64Value(r))
	case wasm.OpI64RemU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		r, err := remU64(uint64(a), uint64(b))
		if err != nil {
			return err
		}
		stack.Push(I64Value(int64(r)))
	case wasm.OpI64And:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a & b))
	case wasm.OpI64Or:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a | b))
	case wasm.OpI64Xor:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a ^ b))
	case wasm.OpI64Shl:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a << (uint64(b) % 64)))
	case wasm.OpI64ShrS:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(a >> (uint64(b) % 64)))
	case wasm.OpI64ShrU:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(int64(uint64(a) >> (uint64(b) % 64))))
	case wasm.OpI64Rotl:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(int64(rotl64(uint64(a), b))))
	case wasm.OpI64Rotr:
		b, a := stack.Pop().I64(), stack.Pop().I64()
		stack.Push(I64Value(int64(rotr64(uint64(a), b))))

	// f32 arithmetic.
	case wasm.OpF32Abs:
		stack.Push(F32Value(float32(math.Abs(float64(stack.Pop().F32())))))
	case wasm.OpF32Neg:
		stack.Push(F32Value(-stack.Pop().F32()))
	case wasm.OpF32Ceil:
		stack.Push(F32Value(canonF32(float32(math.Ceil(float64(stack.Pop().F32()))))))
	case wasm.OpF32Floor:
		stack.Push(F32Value(canonF32(float32(math.Floor(float64(stack.Pop().F32()))))))
	case wasm.OpF32Trunc:
		stack.Push(F32Value(canonF32(float32(math.Trunc(float64(stack.Pop().F32()))))))
	case wasm.OpF32Nearest:
		stack.Push(F32Value(fnearest32(stack.Pop().F32())))
	case wasm.OpF32Sqrt:
		stack.Push(F32Value(canonF32(float32(math.Sqrt(float64(stack.Pop().F32()))))))
	case wasm.OpF32Add:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(canonF32(a + b)))
	case wasm.OpF32Sub:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(canonF32(a - b)))
	case wasm.OpF32Mul:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(canonF32(a * b)))
	case wasm.OpF32Div:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(canonF32(a / b)))
	case wasm.OpF32Min:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(fmin32(a, b)))
	case wasm.OpF32Max:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(fmax32(a, b)))
	case wasm.OpF32Copysign:
		b, a := stack.Pop().F32(), stack.Pop().F32()
		stack.Push(F32Value(float32(math.Copysign(float64(a), float64(b)))))

	// f64 arithmetic.
	case wasm.OpF64Abs:
		stack.Push(F64Value(math.Abs(stack.Pop().F64())))
	case wasm.OpF64Neg:
		stack.Push(F64Value(-stack.Pop().F64()))
	case wasm.OpF64Ceil:
		stack.Push(F64Value(canonF64(math.Ceil(stack.Pop().F64()))))
	case wasm.OpF64Floor:
		stack.Push(F64Value(canonF64(math.Floor(stack.Pop().F64()))))
	case wasm.OpF64Trunc:
		stack.Push(F64Value(canonF64(math.Trunc(stack.Pop().F64()))))
	case wasm.OpF64Nearest:
		stack.Push(F64Value(fnearest64(stack.Pop().F64())))
	case wasm.OpF64Sqrt:
		stack.Push(F64Value(canonF64(math.Sqrt(stack.Pop().F64()))))
	case wasm.OpF64Add:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(canonF64(a + b)))
	case wasm.OpF64Sub:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(canonF64(a - b)))
	case wasm.OpF64Mul:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(canonF64(a * b)))
	case wasm.OpF64Div:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(canonF64(a / b)))
	case wasm.OpF64Min:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(fmin64(a, b)))
	case wasm.OpF64Max:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(fmax64(a, b)))
	case wasm.OpF64Copysign:
		b, a := stack.Pop().F64(), stack.Pop().F64()
		stack.Push(F64Value(math.Copysign(a, b)))

	// Conversions.
	case wasm.OpI32WrapI64:
		stack.Push(I32Value(int32(stack.Pop().I64())))
	case wasm.OpI32TruncF32S:
		r, err := truncToI32S(float64(stack.Pop().F32()))
		if err != nil {
			return err
		}
		stack.Push(I32Value(r))
	case wasm.OpI32TruncF32U:
		r, err := truncToI32U(float64(stack.Pop().F32()))
		if err != nil {
			return err
		}
		stack.Push(I32Value(int32(r)))
	case wasm.OpI32TruncF64S:
		r, err := truncToI32S(stack.Pop().F64())
		if err != nil {
			return err
		}
		stack.Push(I32Value(r))
	case wasm.OpI32TruncF64U:
		r, err := truncToI32U(stack.Pop().F64())
		if err != nil {
			return err
		}
		stack.Push(I32Value(int32(r)))
	case wasm.OpI64ExtendI32S:
		stack.Push(I64Value(int64(stack.Pop().I32())))
	case wasm.OpI64ExtendI32U:
		stack.Push(I64Value(int64(uint32(stack.Pop().I32()))))
	case wasm.OpI64TruncF32S:
		r, err := truncToI64S(float64(stack.Pop().F32()))
		if err != nil {
			return err
		}
		stack.Push(I64Value(r))
	case wasm.OpI64TruncF32U:
		r, err := truncToI64U(float64(stack.Pop().F32()))
		if err != nil {
			return err
		}
		stack.Push(I64Value(int64(r)))
	case wasm.OpI64TruncF64S:
		r, err := truncToI64S(stack.Pop().F64())
		if err != nil {
			return err
		}
		stack.Push(I64Value(r))
	case wasm.OpI64TruncF64U:
		r, err := truncToI64U(stack.Pop().F64())
		if err != nil {
			return err
		}
		stack.Push(I64Value(int64(r)))
	case wasm.OpF32ConvertI32S:
		stack.Push(F32Value(float32(stack.Pop().I32())))
	case wasm.OpF32ConvertI32U:
		stack.Push(F32Value(float32(uint32(stack.Pop().I32()))))
	case wasm.OpF32ConvertI64S:
		stack.Push(F32Value(float32(stack.Pop().I64())))
	case wasm.OpF32ConvertI64U:
		stack.Push(F32Value(float32(uint64(stack.Pop().I64()))))
	case wasm.OpF32DemoteF64:
		stack.Push(F32Value(canonF32(float32(stack.Pop().F64()))))
	case wasm.OpF64ConvertI32S:
		stack.Push(F64Value(float64(stack.Pop().I32())))
	case wasm.OpF64ConvertI32U:
		stack.Push(F64Value(float64(uint32(stack.Pop().I32()))))
	case wasm.OpF64ConvertI64S:
		stack.Push(F64Value(float64(stack.Pop().I64())))
	case wasm.OpF64ConvertI64U:
		stack.Push(F64Value(float64(uint64(stack.Pop().I64()))))
	case wasm.OpF64PromoteF32:
		stack.Push(F64Value(canonF64(float64(stack.Pop().F32()))))
	case wasm.OpI32ReinterpretF32:
		stack.Push(I32Value(int32(math.Float32bits(stack.Pop().F32()))))
	case wasm.OpI64ReinterpretF64:
		stack.Push(I64Value(int64(math.Float64bits(stack.Pop().F64()))))
	case wasm.OpF32ReinterpretI32:
		stack.Push(F32Value(math.Float32frombits(uint32(stack.Pop().I32()))))
	case wasm.OpF64ReinterpretI64:
		stack.Push(F64Value(math.Float64frombits(uint64(stack.Pop().I64()))))

	// Sign extension.
	case wasm.OpI32Extend8S:
		stack.Push(I32Value(int32(int8(stack.Pop().I32()))))
	case wasm.OpI32Extend16S:
		stack.Push(I32Value(int32(int16(stack.Pop().I32()))))
	case wasm.OpI64Extend8S:
		stack.Push(I64Value(int64(int8(stack.Pop().I64()))))
	case wasm.OpI64Extend16S:
		stack.Push(I64Value(int64(int16(stack.Pop().I64()))))
	case wasm.OpI64Extend32S:
		stack.Push(I64Value(int64(int32(stack.Pop().I64()))))

	default:
		return errors.InvalidInput(errors.PhaseExec, "unhandled opcode")
	}
	return nil
}

func (it *Interpreter) load(s *Store, in *wasm.Instruction,
	read func(*MemoryInstance, uint32, uint32) (Value, error)) error {
	imm := in.Imm.(wasm.MemoryImm)
	addr := uint32(it.stack.Pop().I32())
	v, err := read(it.memory(s), addr, imm.Offset)
	if err != nil {
		return err
	}
	it.stack.Push(v)
	return nil
}

func (it *Interpreter) store(s *Store, in *wasm.Instruction,
	write func(*MemoryInstance, uint32, uint32) error) error {
	imm := in.Imm.(wasm.MemoryImm)
	addr := uint32(it.stack.Pop().I32())
	return write(it.memory(s), addr, imm.Offset)
}
