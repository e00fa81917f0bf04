package wasm

import (
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm/internal/binary"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type for block, loop, and if instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint32
	Align  uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// DecodeInstructions decodes a bytecode sequence (including its trailing end
// opcode) into a flat instruction slice.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	var out []Instruction

	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, errors.UnexpectedEnd("opcode")
		}

		instr := Instruction{Opcode: op}

		switch op {
		case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect:
			// No immediates.

		case OpBlock, OpLoop, OpIf:
			bt, err := r.ReadS32()
			if err != nil {
				return nil, immErr(err, "block type")
			}
			instr.Imm = BlockImm{Type: bt}

		case OpBr, OpBrIf:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "label index")
			}
			instr.Imm = BranchImm{LabelIdx: idx}

		case OpBrTable:
			count, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "br_table count")
			}
			labels := make([]uint32, count)
			for i := uint32(0); i < count; i++ {
				labels[i], err = r.ReadU32()
				if err != nil {
					return nil, immErr(err, "br_table label")
				}
			}
			def, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "br_table default")
			}
			instr.Imm = BrTableImm{Labels: labels, Default: def}

		case OpCall:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "call index")
			}
			instr.Imm = CallImm{FuncIdx: idx}

		case OpCallIndirect:
			typeIdx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "call_indirect type index")
			}
			tableIdx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "call_indirect table index")
			}
			instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

		case OpLocalGet, OpLocalSet, OpLocalTee:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "local index")
			}
			instr.Imm = LocalImm{LocalIdx: idx}

		case OpGlobalGet, OpGlobalSet:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "global index")
			}
			instr.Imm = GlobalImm{GlobalIdx: idx}

		case OpI32Const:
			v, err := r.ReadS32()
			if err != nil {
				return nil, immErr(err, "i32 constant")
			}
			instr.Imm = I32Imm{Value: v}

		case OpI64Const:
			v, err := r.ReadS64()
			if err != nil {
				return nil, immErr(err, "i64 constant")
			}
			instr.Imm = I64Imm{Value: v}

		case OpF32Const:
			v, err := r.ReadF32()
			if err != nil {
				return nil, immErr(err, "f32 constant")
			}
			instr.Imm = F32Imm{Value: v}

		case OpF64Const:
			v, err := r.ReadF64()
			if err != nil {
				return nil, immErr(err, "f64 constant")
			}
			instr.Imm = F64Imm{Value: v}

		case OpMemorySize, OpMemoryGrow:
			// Reserved memory index byte, must be zero under MVP.
			b, err := r.ReadByte()
			if err != nil {
				return nil, immErr(err, "memory index")
			}
			if b != 0x00 {
				return nil, errors.Decode(errors.KindUnknownOpcode, "memory index 0x%02x", b)
			}

		case OpPrefixMisc:
			sub, err := r.ReadU32()
			if err != nil {
				return nil, immErr(err, "misc sub-opcode")
			}
			imm := MiscImm{SubOpcode: sub}
			operands, err := readMiscOperands(r, sub)
			if err != nil {
				return nil, err
			}
			imm.Operands = operands
			instr.Imm = imm

		default:
			if isMemoryAccess(op) {
				align, err := r.ReadU32()
				if err != nil {
					return nil, immErr(err, "memarg align")
				}
				offset, err := r.ReadU32()
				if err != nil {
					return nil, immErr(err, "memarg offset")
				}
				instr.Imm = MemoryImm{Align: align, Offset: offset}
			} else if !isPlainNumeric(op) {
				return nil, errors.Decode(errors.KindUnknownOpcode, "0x%02x", op)
			}
		}

		out = append(out, instr)
	}

	return out, nil
}

func readMiscOperands(r *binary.Reader, sub uint32) ([]uint32, error) {
	var n int
	switch sub {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U, MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U, MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		n = 0
	case MiscDataDrop, MiscElemDrop:
		n = 1
	case MiscMemoryInit, MiscMemoryCopy, MiscMemoryFill, MiscTableInit, MiscTableCopy:
		// memory.fill carries one index but still one trailing zero byte pair
		// layout; all of these encode their indices as u32 immediates.
		switch sub {
		case MiscMemoryFill:
			n = 1
		default:
			n = 2
		}
	default:
		return nil, errors.Decode(errors.KindUnknownOpcode, "0xFC 0x%02x", sub)
	}
	if n == 0 {
		return nil, nil
	}
	ops := make([]uint32, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return nil, immErr(err, "misc operand")
		}
		ops[i] = v
	}
	return ops, nil
}

func isMemoryAccess(op byte) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

// isPlainNumeric reports whether op is a numeric/parametric opcode with no
// immediates.
func isPlainNumeric(op byte) bool {
	return op >= OpI32Eqz && op <= OpI64Extend32S
}

func immErr(err error, context string) error {
	return decodeErr(err, context)
}
