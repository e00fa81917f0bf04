package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-vm/errors"
)

// anyType is the bottom type used for stack polymorphism after an
// unconditional branch or unreachable.
const anyType ValType = 0

type ctrlFrame struct {
	startTypes  []ValType
	endTypes    []ValType
	opcode      byte
	height      int
	unreachable bool
}

// codeValidator type-checks one function body with a synthetic value/label
// stack, per the WebAssembly spec validation algorithm.
type codeValidator struct {
	module  *Module
	locals  []ValType
	values  []ValType
	ctrl    []ctrlFrame
	funcIdx int
	instr   int
}

// validateCode type-checks every function body.
func (m *Module) validateCode() error {
	for i := range m.Code {
		if err := m.validateFuncBody(i); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateFuncBody(i int) error {
	ft := m.Types[m.Funcs[i]]
	body := &m.Code[i]

	locals := make([]ValType, 0, len(ft.Params)+int(body.NumLocals()))
	locals = append(locals, ft.Params...)
	locals = append(locals, body.LocalTypes()...)

	instrs, err := DecodeInstructions(body.Code)
	if err != nil {
		return err
	}

	v := &codeValidator{module: m, locals: locals, funcIdx: i}
	v.pushCtrl(OpBlock, nil, ft.Results)

	for j, in := range instrs {
		v.instr = j
		if err := v.step(in); err != nil {
			return err
		}
	}
	if len(v.ctrl) != 0 {
		return v.fail(errors.KindTypeMismatch, "unclosed block")
	}
	return nil
}

func (v *codeValidator) fail(kind errors.Kind, detail string, args ...any) error {
	path := []string{
		fmt.Sprintf("func[%d]", v.funcIdx),
		fmt.Sprintf("instr[%d]", v.instr),
	}
	return errors.Validation(kind, path, detail, args...)
}

func (v *codeValidator) step(in Instruction) error {
	op := in.Opcode
	switch op {
	case OpUnreachable:
		return v.setUnreachable()
	case OpNop:
		return nil

	case OpBlock, OpLoop:
		start, end, err := v.blockTypes(in.Imm.(BlockImm).Type)
		if err != nil {
			return err
		}
		if err := v.popExpectedAll(start); err != nil {
			return err
		}
		v.pushCtrl(op, start, end)
		return nil

	case OpIf:
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		start, end, err := v.blockTypes(in.Imm.(BlockImm).Type)
		if err != nil {
			return err
		}
		if err := v.popExpectedAll(start); err != nil {
			return err
		}
		v.pushCtrl(op, start, end)
		return nil

	case OpElse:
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.opcode != OpIf {
			return v.fail(errors.KindTypeMismatch, "else without matching if")
		}
		v.pushCtrl(OpElse, frame.startTypes, frame.endTypes)
		return nil

	case OpEnd:
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		// An if without else must have matching input and output types.
		if frame.opcode == OpIf && !typeSlicesEqual(frame.startTypes, frame.endTypes) {
			return v.fail(errors.KindTypeMismatch, "if without else requires identical block input and output")
		}
		v.pushAll(frame.endTypes)
		return nil

	case OpBr:
		labels := v.labelTypesAt(in.Imm.(BranchImm).LabelIdx)
		if labels == nil {
			return v.fail(errors.KindUnknownLabel, "label %d", in.Imm.(BranchImm).LabelIdx)
		}
		if err := v.popExpectedAll(labels); err != nil {
			return err
		}
		return v.setUnreachable()

	case OpBrIf:
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		labels := v.labelTypesAt(in.Imm.(BranchImm).LabelIdx)
		if labels == nil {
			return v.fail(errors.KindUnknownLabel, "label %d", in.Imm.(BranchImm).LabelIdx)
		}
		if err := v.popExpectedAll(labels); err != nil {
			return err
		}
		v.pushAll(labels)
		return nil

	case OpBrTable:
		imm := in.Imm.(BrTableImm)
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		defTypes := v.labelTypesAt(imm.Default)
		if defTypes == nil {
			return v.fail(errors.KindUnknownLabel, "default label %d", imm.Default)
		}
		for _, l := range imm.Labels {
			lt := v.labelTypesAt(l)
			if lt == nil {
				return v.fail(errors.KindUnknownLabel, "label %d", l)
			}
			if len(lt) != len(defTypes) {
				return v.fail(errors.KindTypeMismatch,
					"br_table target arities differ (%d vs %d)", len(lt), len(defTypes))
			}
			if err := v.popExpectedAll(lt); err != nil {
				return err
			}
			v.pushAll(lt)
		}
		if err := v.popExpectedAll(defTypes); err != nil {
			return err
		}
		return v.setUnreachable()

	case OpReturn:
		results := v.ctrl[0].endTypes
		if err := v.popExpectedAll(results); err != nil {
			return err
		}
		return v.setUnreachable()

	case OpCall:
		idx := in.Imm.(CallImm).FuncIdx
		ft := v.module.GetFuncType(idx)
		if ft == nil {
			return v.fail(errors.KindUnknownFunc, "function %d", idx)
		}
		if err := v.popExpectedAll(ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results)
		return nil

	case OpCallIndirect:
		imm := in.Imm.(CallIndirectImm)
		if int(imm.TypeIdx) >= len(v.module.Types) {
			return v.fail(errors.KindUnknownType, "type %d", imm.TypeIdx)
		}
		if int(imm.TableIdx) >= v.module.NumImportedTables()+len(v.module.Tables) {
			return v.fail(errors.KindUnknownTable, "table %d", imm.TableIdx)
		}
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		ft := v.module.Types[imm.TypeIdx]
		if err := v.popExpectedAll(ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results)
		return nil

	case OpDrop:
		_, err := v.pop()
		return err

	case OpSelect:
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		t1, err := v.pop()
		if err != nil {
			return err
		}
		t2, err := v.pop()
		if err != nil {
			return err
		}
		if t1 != t2 && t1 != anyType && t2 != anyType {
			return v.fail(errors.KindTypeMismatch, "select operand types differ")
		}
		if t1 == anyType {
			v.push(t2)
		} else {
			v.push(t1)
		}
		return nil

	case OpLocalGet:
		t, err := v.localType(in.Imm.(LocalImm).LocalIdx)
		if err != nil {
			return err
		}
		v.push(t)
		return nil

	case OpLocalSet:
		t, err := v.localType(in.Imm.(LocalImm).LocalIdx)
		if err != nil {
			return err
		}
		return v.popExpected(t)

	case OpLocalTee:
		t, err := v.localType(in.Imm.(LocalImm).LocalIdx)
		if err != nil {
			return err
		}
		if err := v.popExpected(t); err != nil {
			return err
		}
		v.push(t)
		return nil

	case OpGlobalGet:
		gt, err := v.globalType(in.Imm.(GlobalImm).GlobalIdx)
		if err != nil {
			return err
		}
		v.push(gt.ValType)
		return nil

	case OpGlobalSet:
		gt, err := v.globalType(in.Imm.(GlobalImm).GlobalIdx)
		if err != nil {
			return err
		}
		if !gt.Mutable {
			return v.fail(errors.KindImmutableGlobalStore,
				"global %d is immutable", in.Imm.(GlobalImm).GlobalIdx)
		}
		return v.popExpected(gt.ValType)

	case OpMemorySize:
		if err := v.requireMemory(); err != nil {
			return err
		}
		v.push(ValI32)
		return nil

	case OpMemoryGrow:
		if err := v.requireMemory(); err != nil {
			return err
		}
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		v.push(ValI32)
		return nil

	case OpI32Const:
		v.push(ValI32)
		return nil
	case OpI64Const:
		v.push(ValI64)
		return nil
	case OpF32Const:
		v.push(ValF32)
		return nil
	case OpF64Const:
		v.push(ValF64)
		return nil

	case OpPrefixMisc:
		return v.stepMisc(in.Imm.(MiscImm))
	}

	if isMemoryAccess(op) {
		return v.stepMemoryAccess(op, in.Imm.(MemoryImm))
	}

	if pops, pushes, ok := numericSignature(op); ok {
		for i := len(pops) - 1; i >= 0; i-- {
			if err := v.popExpected(pops[i]); err != nil {
				return err
			}
		}
		v.pushAll(pushes)
		return nil
	}

	return v.fail(errors.KindTypeMismatch, "unhandled opcode 0x%02x", op)
}

func (v *codeValidator) stepMemoryAccess(op byte, imm MemoryImm) error {
	if err := v.requireMemory(); err != nil {
		return err
	}
	width, valType, isStore := memoryAccessShape(op)
	if 1<<imm.Align > width {
		return v.fail(errors.KindInvalidAlignment,
			"alignment 2^%d exceeds access width %d", imm.Align, width)
	}
	if isStore {
		if err := v.popExpected(valType); err != nil {
			return err
		}
		if err := v.popExpected(ValI32); err != nil {
			return err
		}
		return nil
	}
	if err := v.popExpected(ValI32); err != nil {
		return err
	}
	v.push(valType)
	return nil
}

func (v *codeValidator) stepMisc(imm MiscImm) error {
	switch imm.SubOpcode {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U:
		return v.convert(ValF32, ValI32)
	case MiscI32TruncSatF64S, MiscI32TruncSatF64U:
		return v.convert(ValF64, ValI32)
	case MiscI64TruncSatF32S, MiscI64TruncSatF32U:
		return v.convert(ValF32, ValI64)
	case MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		return v.convert(ValF64, ValI64)

	case MiscMemoryInit:
		if err := v.requireMemory(); err != nil {
			return err
		}
		if v.module.DataCount == nil {
			return v.fail(errors.KindUnknownMemory, "memory.init requires a data count section")
		}
		if imm.Operands[0] >= *v.module.DataCount {
			return v.fail(errors.KindUnknownMemory, "data segment %d", imm.Operands[0])
		}
		return v.popExpectedAll([]ValType{ValI32, ValI32, ValI32})

	case MiscDataDrop:
		if v.module.DataCount == nil {
			return v.fail(errors.KindUnknownMemory, "data.drop requires a data count section")
		}
		if imm.Operands[0] >= *v.module.DataCount {
			return v.fail(errors.KindUnknownMemory, "data segment %d", imm.Operands[0])
		}
		return nil

	case MiscMemoryCopy, MiscMemoryFill:
		if err := v.requireMemory(); err != nil {
			return err
		}
		return v.popExpectedAll([]ValType{ValI32, ValI32, ValI32})

	case MiscTableInit:
		if int(imm.Operands[0]) >= len(v.module.Elements) {
			return v.fail(errors.KindUnknownTable, "element segment %d", imm.Operands[0])
		}
		if int(imm.Operands[1]) >= v.module.NumImportedTables()+len(v.module.Tables) {
			return v.fail(errors.KindUnknownTable, "table %d", imm.Operands[1])
		}
		return v.popExpectedAll([]ValType{ValI32, ValI32, ValI32})

	case MiscElemDrop:
		if int(imm.Operands[0]) >= len(v.module.Elements) {
			return v.fail(errors.KindUnknownTable, "element segment %d", imm.Operands[0])
		}
		return nil

	case MiscTableCopy:
		numTables := v.module.NumImportedTables() + len(v.module.Tables)
		if int(imm.Operands[0]) >= numTables || int(imm.Operands[1]) >= numTables {
			return v.fail(errors.KindUnknownTable, "table copy indices %v", imm.Operands)
		}
		return v.popExpectedAll([]ValType{ValI32, ValI32, ValI32})
	}
	return v.fail(errors.KindTypeMismatch, "unhandled misc opcode %d", imm.SubOpcode)
}

func (v *codeValidator) convert(from, to ValType) error {
	if err := v.popExpected(from); err != nil {
		return err
	}
	v.push(to)
	return nil
}

func (v *codeValidator) requireMemory() error {
	if v.module.NumImportedMemories()+len(v.module.Memories) == 0 {
		return v.fail(errors.KindUnknownMemory, "no memory declared")
	}
	return nil
}

func (v *codeValidator) localType(idx uint32) (ValType, error) {
	if int(idx) >= len(v.locals) {
		return 0, v.fail(errors.KindUnknownLocal, "local %d (have %d)", idx, len(v.locals))
	}
	return v.locals[idx], nil
}

func (v *codeValidator) globalType(idx uint32) (GlobalType, error) {
	imported := v.module.importedGlobalTypes()
	if int(idx) < len(imported) {
		return imported[idx], nil
	}
	declared := int(idx) - len(imported)
	if declared >= len(v.module.Globals) {
		return GlobalType{}, v.fail(errors.KindUnknownGlobal, "global %d", idx)
	}
	return v.module.Globals[declared].Type, nil
}

func (v *codeValidator) blockTypes(bt int32) ([]ValType, []ValType, error) {
	if bt == BlockTypeVoid {
		return nil, nil, nil
	}
	if bt >= 0 {
		if int(bt) >= len(v.module.Types) {
			return nil, nil, v.fail(errors.KindUnknownType, "block type %d", bt)
		}
		ft := v.module.Types[bt]
		return ft.Params, ft.Results, nil
	}
	t := ValType(byte(bt & 0x7F))
	if !t.IsNum() {
		return nil, nil, v.fail(errors.KindTypeMismatch, "block type %d", bt)
	}
	return nil, []ValType{t}, nil
}

func (v *codeValidator) labelTypesAt(labelIdx uint32) []ValType {
	if labelIdx >= uint32(len(v.ctrl)) {
		return nil
	}
	frame := &v.ctrl[len(v.ctrl)-1-int(labelIdx)]
	if frame.opcode == OpLoop {
		if frame.startTypes == nil {
			return []ValType{}
		}
		return frame.startTypes
	}
	if frame.endTypes == nil {
		return []ValType{}
	}
	return frame.endTypes
}

func (v *codeValidator) push(t ValType) {
	v.values = append(v.values, t)
}

func (v *codeValidator) pushAll(types []ValType) {
	v.values = append(v.values, types...)
}

func (v *codeValidator) pop() (ValType, error) {
	frame := &v.ctrl[len(v.ctrl)-1]
	if len(v.values) == frame.height {
		if frame.unreachable {
			return anyType, nil
		}
		return 0, v.fail(errors.KindTypeMismatch, "value stack underflow")
	}
	t := v.values[len(v.values)-1]
	v.values = v.values[:len(v.values)-1]
	return t, nil
}

func (v *codeValidator) popExpected(expected ValType) error {
	got, err := v.pop()
	if err != nil {
		return err
	}
	if got != expected && got != anyType {
		return v.fail(errors.KindTypeMismatch, "expected %s, found %s", expected, got)
	}
	return nil
}

func (v *codeValidator) popExpectedAll(expected []ValType) error {
	for i := len(expected) - 1; i >= 0; i-- {
		if err := v.popExpected(expected[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *codeValidator) pushCtrl(opcode byte, start, end []ValType) {
	v.ctrl = append(v.ctrl, ctrlFrame{
		opcode:     opcode,
		startTypes: start,
		endTypes:   end,
		height:     len(v.values),
	})
	v.pushAll(start)
}

func (v *codeValidator) popCtrl() (ctrlFrame, error) {
	if len(v.ctrl) == 0 {
		return ctrlFrame{}, v.fail(errors.KindTypeMismatch, "end without matching block")
	}
	frame := v.ctrl[len(v.ctrl)-1]
	if err := v.popExpectedAll(frame.endTypes); err != nil {
		return ctrlFrame{}, err
	}
	if len(v.values) != frame.height {
		return ctrlFrame{}, v.fail(errors.KindTypeMismatch,
			"%d extra values on the stack at block end", len(v.values)-frame.height)
	}
	v.ctrl = v.ctrl[:len(v.ctrl)-1]
	return frame, nil
}

func (v *codeValidator) setUnreachable() error {
	frame := &v.ctrl[len(v.ctrl)-1]
	v.values = v.values[:frame.height]
	frame.unreachable = true
	return nil
}

func typeSlicesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// memoryAccessShape returns the access width in bytes, the value type moved,
// and whether the opcode is a store.
func memoryAccessShape(op byte) (width uint32, t ValType, isStore bool) {
	switch op {
	case OpI32Load:
		return 4, ValI32, false
	case OpI64Load:
		return 8, ValI64, false
	case OpF32Load:
		return 4, ValF32, false
	case OpF64Load:
		return 8, ValF64, false
	case OpI32Load8S, OpI32Load8U:
		return 1, ValI32, false
	case OpI32Load16S, OpI32Load16U:
		return 2, ValI32, false
	case OpI64Load8S, OpI64Load8U:
		return 1, ValI64, false
	case OpI64Load16S, OpI64Load16U:
		return 2, ValI64, false
	case OpI64Load32S, OpI64Load32U:
		return 4, ValI64, false
	case OpI32Store:
		return 4, ValI32, true
	case OpI64Store:
		return 8, ValI64, true
	case OpF32Store:
		return 4, ValF32, true
	case OpF64Store:
		return 8, ValF64, true
	case OpI32Store8:
		return 1, ValI32, true
	case OpI32Store16:
		return 2, ValI32, true
	case OpI64Store8:
		return 1, ValI64, true
	case OpI64Store16:
		return 2, ValI64, true
	case OpI64Store32:
		return 4, ValI64, true
	}
	return 0, 0, false
}

// numericSignature returns the operand and result types for plain numeric
// opcodes (no immediates).
func numericSignature(op byte) (pops, pushes []ValType, ok bool) {
	sig := func(p []ValType, r []ValType) ([]ValType, []ValType, bool) {
		return p, r, true
	}
	switch {
	case op == OpI32Eqz:
		return sig([]ValType{ValI32}, []ValType{ValI32})
	case op >= OpI32Eq && op <= OpI32GeU:
		return sig([]ValType{ValI32, ValI32}, []ValType{ValI32})
	case op == OpI64Eqz:
		return sig([]ValType{ValI64}, []ValType{ValI32})
	case op >= OpI64Eq && op <= OpI64GeU:
		return sig([]ValType{ValI64, ValI64}, []ValType{ValI32})
	case op >= OpF32Eq && op <= OpF32Ge:
		return sig([]ValType{ValF32, ValF32}, []ValType{ValI32})
	case op >= OpF64Eq && op <= OpF64Ge:
		return sig([]ValType{ValF64, ValF64}, []ValType{ValI32})
	case op >= OpI32Clz && op <= OpI32Popcnt:
		return sig([]ValType{ValI32}, []ValType{ValI32})
	case op >= OpI32Add && op <= OpI32Rotr:
		return sig([]ValType{ValI32, ValI32}, []ValType{ValI32})
	case op >= OpI64Clz && op <= OpI64Popcnt:
		return sig([]ValType{ValI64}, []ValType{ValI64})
	case op >= OpI64Add && op <= OpI64Rotr:
		return sig([]ValType{ValI64, ValI64}, []ValType{ValI64})
	case op >= OpF32Abs && op <= OpF32Sqrt:
		return sig([]ValType{ValF32}, []ValType{ValF32})
	case op >= OpF32Add && op <= OpF32Copysign:
		return sig([]ValType{ValF32, ValF32}, []ValType{ValF32})
	case op >= OpF64Abs && op <= OpF64Sqrt:
		return sig([]ValType{ValF64}, []ValType{ValF64})
	case op >= OpF64Add && op <= OpF64Copysign:
		return sig([]ValType{ValF64, ValF64}, []ValType{ValF64})
	}
	switch op {
	case OpI32WrapI64:
		return sig([]ValType{ValI64}, []ValType{ValI32})
	case OpI32TruncF32S, OpI32TruncF32U:
		return sig([]ValType{ValF32}, []ValType{ValI32})
	case OpI32TruncF64S, OpI32TruncF64U:
		return sig([]ValType{ValF64}, []ValType{ValI32})
	case OpI64ExtendI32S, OpI64ExtendI32U:
		return sig([]ValType{ValI32}, []ValType{ValI64})
	case OpI64TruncF32S, OpI64TruncF32U:
		return sig([]ValType{ValF32}, []ValType{ValI64})
	case OpI64TruncF64S, OpI64TruncF64U:
		return sig([]ValType{ValF64}, []ValType{ValI64})
	case OpF32ConvertI32S, OpF32ConvertI32U:
		return sig([]ValType{ValI32}, []ValType{ValF32})
	case OpF32ConvertI64S, OpF32ConvertI64U:
		return sig([]ValType{ValI64}, []ValType{ValF32})
	case OpF32DemoteF64:
		return sig([]ValType{ValF64}, []ValType{ValF32})
	case OpF64ConvertI32S, OpF64ConvertI32U:
		return sig([]ValType{ValI32}, []ValType{ValF64})
	case OpF64ConvertI64S, OpF64ConvertI64U:
		return sig([]ValType{ValI64}, []ValType{ValF64})
	case OpF64PromoteF32:
		return sig([]ValType{ValF32}, []ValType{ValF64})
	case OpI32ReinterpretF32:
		return sig([]ValType{ValF32}, []ValType{ValI32})
	case OpI64ReinterpretF64:
		return sig([]ValType{ValF64}, []ValType{ValI64})
	case OpF32ReinterpretI32:
		return sig([]ValType{ValI32}, []ValType{ValF32})
	case OpF64ReinterpretI64:
		return sig([]ValType{ValI64}, []ValType{ValF64})
	case OpI32Extend8S, OpI32Extend16S:
		return sig([]ValType{ValI32}, []ValType{ValI32})
	case OpI64Extend8S, OpI64Extend16S, OpI64Extend32S:
		return sig([]ValType{ValI64}, []ValType{ValI64})
	}
	return nil, nil, false
}
