package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// Interpreter executes wasm functions over a typed operand stack with framed
// call semantics. One interpreter, its stack manager, and its instruction
// provider form a thread-local triple; concurrent use is undefined.
type Interpreter struct {
	stack    *StackManager
	provider *Provider
	cfg      Config
}

// NewInterpreter creates an interpreter with the given configuration.
func NewInterpreter(cfg Config) *Interpreter {
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = DefaultConfig().MaxCallDepth
	}
	return &Interpreter{
		stack:    NewStackManager(),
		provider: NewProvider(),
		cfg:      cfg,
	}
}

// Provider returns the interpreter's instruction provider.
func (it *Interpreter) Provider() *Provider {
	return it.provider
}

// Config returns the interpreter's configuration.
func (it *Interpreter) Config() Config {
	return it.cfg
}

// RunFunction invokes a function by store address. Arguments are pushed in
// order; on normal return the results (equal in number to the function
// type's results) are popped and returned. A trap unwinds all frames of the
// invocation and is returned; the store stays consistent.
func (it *Interpreter) RunFunction(s *Store, fnAddr uint32, args []Value) ([]Value, error) {
	f := s.GetFunction(fnAddr)
	if f == nil {
		return nil, errors.InvalidInput(errors.PhaseExec, "no function at address")
	}
	if len(args) != len(f.Type.Params) {
		return nil, errors.New(errors.PhaseExec, errors.KindTypeMismatch,
			"expected %d arguments, got %d", len(f.Type.Params), len(args))
	}
	defer it.stack.Clear()

	for i, a := range args {
		if a.Type != f.Type.Params[i] {
			return nil, errors.New(errors.PhaseExec, errors.KindTypeMismatch,
				"argument %d: expected %s, got %s", i, f.Type.Params[i], a.Type)
		}
		it.stack.Push(a)
	}

	if err := it.invoke(s, f); err != nil {
		if t := errors.AsTrap(err); t != nil {
			logTrap(t)
		}
		return nil, err
	}
	return it.stack.PopN(len(f.Type.Results)), nil
}

// invoke runs one function with its arguments already on the operand stack.
func (it *Interpreter) invoke(s *Store, f *FunctionInstance) error {
	if f.IsHost() {
		return it.invokeHost(f)
	}
	return it.invokeWasm(s, f)
}

func (it *Interpreter) invokeHost(f *FunctionInstance) error {
	args := it.stack.PopN(len(f.Type.Params))
	results, err := f.Host(args)
	if err != nil {
		if t := errors.AsTrap(err); t != nil {
			return t
		}
		return errors.HostTrap(err)
	}
	if len(results) != len(f.Type.Results) {
		return errors.HostTrap(errors.New(errors.PhaseExec, errors.KindTypeMismatch,
			"host function returned %d values, declared %d", len(results), len(f.Type.Results)))
	}
	for i, r := range results {
		r.Type = f.Type.Results[i]
		it.stack.Push(r)
	}
	return nil
}

func (it *Interpreter) invokeWasm(s *Store, f *FunctionInstance) error {
	if it.stack.FrameDepth() >= it.cfg.MaxCallDepth {
		return errors.NewTrap(errors.TrapCallStackExhausted)
	}

	code, err := it.provider.Code(f)
	if err != nil {
		return err
	}

	numParams := len(f.Type.Params)
	locals := make([]Value, numParams+len(f.Locals))
	copy(locals, it.stack.PopN(numParams))
	for i, t := range f.Locals {
		locals[numParams+i] = ZeroValue(t)
	}

	it.stack.PushFrame(f.ModuleAddr, len(f.Type.Results), locals)
	it.stack.PushLabel(LabelBlock, len(f.Type.Results), len(code.Instrs))

	if err := it.exec(s, code); err != nil {
		it.stack.DropFrame()
		return err
	}
	it.stack.PopFrame()
	return nil
}

// exec is the dispatch loop for one frame. The cursor is mutated by
// branches to the continuation recorded on the target label.
func (it *Interpreter) exec(s *Store, code *FuncCode) error {
	stack := it.stack
	instrs := code.Instrs
	pc := 0

	for pc < len(instrs) {
		in := &instrs[pc]
		pc++

		switch in.Opcode {
		case wasm.OpUnreachable:
			return errors.NewTrap(errors.TrapUnreachable)

		case wasm.OpNop:

		case wasm.OpBlock:
			arity := it.blockOutputs(s, in.Imm.(wasm.BlockImm).Type)
			stack.PushLabel(LabelBlock, arity, code.EndOf[pc-1])

		case wasm.OpLoop:
			// Branches to a loop re-enter at the header with the block's
			// input arity, which is zero under MVP block types.
			stack.PushLabel(LabelLoop, 0, pc)

		case wasm.OpIf:
			arity := it.blockOutputs(s, in.Imm.(wasm.BlockImm).Type)
			cond := stack.Pop().I32()
			stack.PushLabel(LabelIf, arity, code.EndOf[pc-1])
			if cond == 0 {
				pc = code.ElseOf[pc-1]
			}

		case wasm.OpElse:
			// Reached only when the then-arm completed; skip past the end.
			l := stack.PopLabel()
			pc = l.Continuation

		case wasm.OpEnd:
			// Validation guarantees exactly the block's results sit above
			// the label height, so popping the label suffices.
			stack.PopLabel()

		case wasm.OpBr:
			pc = it.branch(in.Imm.(wasm.BranchImm).LabelIdx)

		case wasm.OpBrIf:
			if stack.Pop().I32() != 0 {
				pc = it.branch(in.Imm.(wasm.BranchImm).LabelIdx)
			}

		case wasm.OpBrTable:
			imm := in.Imm.(wasm.BrTableImm)
			idx := uint32(stack.Pop().I32())
			target := imm.Default
			if uint64(idx) < uint64(len(imm.Labels)) {
				target = imm.Labels[idx]
			}
			pc = it.branch(target)

		case wasm.OpReturn:
			pc = len(instrs)

		case wasm.OpCall:
			inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
			callee := s.GetFunction(inst.FuncAddrs[in.Imm.(wasm.CallImm).FuncIdx])
			if err := it.invoke(s, callee); err != nil {
				return err
			}

		case wasm.OpCallIndirect:
			if err := it.callIndirect(s, in.Imm.(wasm.CallIndirectImm)); err != nil {
				return err
			}

		case wasm.OpDrop:
			stack.Pop()

		case wasm.OpSelect:
			cond := stack.Pop().I32()
			b := stack.Pop()
			a := stack.Pop()
			if cond != 0 {
				stack.Push(a)
			} else {
				stack.Push(b)
			}

		case wasm.OpLocalGet:
			stack.Push(stack.CurrentFrame().Locals[in.Imm.(wasm.LocalImm).LocalIdx])

		case wasm.OpLocalSet:
			stack.CurrentFrame().Locals[in.Imm.(wasm.LocalImm).LocalIdx] = stack.Pop()

		case wasm.OpLocalTee:
			stack.CurrentFrame().Locals[in.Imm.(wasm.LocalImm).LocalIdx] = stack.Peek()

		case wasm.OpGlobalGet:
			g := it.global(s, in.Imm.(wasm.GlobalImm).GlobalIdx)
			stack.Push(g.Value)

		case wasm.OpGlobalSet:
			g := it.global(s, in.Imm.(wasm.GlobalImm).GlobalIdx)
			if !g.Type.Mutable {
				// Statically forbidden by validation; keep the runtime check
				// as an assertion.
				return errors.InvalidInput(errors.PhaseExec, "store to immutable global")
			}
			g.Value = stack.Pop()

		case wasm.OpMemorySize:
			stack.Push(I32Value(int32(it.memory(s).Pages())))

		case wasm.OpMemoryGrow:
			pages := stack.Pop().I32()
			if pages < 0 {
				stack.Push(I32Value(-1))
			} else {
				stack.Push(I32Value(it.memory(s).Grow(uint32(pages))))
			}

		case wasm.OpI32Const:
			stack.Push(I32Value(in.Imm.(wasm.I32Imm).Value))
		case wasm.OpI64Const:
			stack.Push(I64Value(in.Imm.(wasm.I64Imm).Value))
		case wasm.OpF32Const:
			stack.Push(F32Value(in.Imm.(wasm.F32Imm).Value))
		case wasm.OpF64Const:
			stack.Push(F64Value(in.Imm.(wasm.F64Imm).Value))

		case wasm.OpPrefixMisc:
			if err := it.execMisc(s, in.Imm.(wasm.MiscImm)); err != nil {
				return err
			}

		default:
			if err := it.execSimple(s, in); err != nil {
				return err
			}
		}
	}
	return nil
}

// branch unwinds to the target label and returns the continuation cursor.
// Loop labels are re-pushed so further iterations can branch again.
func (it *Interpreter) branch(labelIdx uint32) int {
	stack := it.stack
	l := stack.TruncateLabels(labelIdx)
	stack.Unwind(l.Height, l.Arity)
	if l.Kind == LabelLoop {
		stack.labels = append(stack.labels, l)
	}
	return l.Continuation
}

func (it *Interpreter) callIndirect(s *Store, imm wasm.CallIndirectImm) error {
	inst := s.GetModule(it.stack.CurrentFrame().ModuleAddr)
	table := s.GetTable(inst.TableAddrs[imm.TableIdx])

	elemIdx := uint32(it.stack.Pop().I32())
	funcAddr, err := table.Get(elemIdx)
	if err != nil {
		return err
	}
	if funcAddr == NullFuncAddr {
		return errors.TrapWithDetail(errors.TrapUninitializedElement, "element %d", elemIdx)
	}

	callee := s.GetFunction(funcAddr)
	expected := inst.Types[imm.TypeIdx]
	if !callee.Type.Equal(expected) {
		return errors.NewTrap(errors.TrapIndirectCallTypeMismatch)
	}
	return it.invoke(s, callee)
}

// blockOutputs returns the result arity of a block type.
func (it *Interpreter) blockOutputs(s *Store, bt int32) int {
	if bt == wasm.BlockTypeVoid {
		return 0
	}
	if bt >= 0 {
		inst := s.GetModule(it.stack.CurrentFrame().ModuleAddr)
		return len(inst.Types[bt].Results)
	}
	return 1
}

func (it *Interpreter) global(s *Store, idx uint32) *GlobalInstance {
	inst := s.GetModule(it.stack.CurrentFrame().ModuleAddr)
	return s.GetGlobal(inst.GlobalAddrs[idx])
}

// memory returns the frame module's memory. Pointers into its buffer are
// re-derived on every access because growth reallocates.
func (it *Interpreter) memory(s *Store) *MemoryInstance {
	inst := s.GetModule(it.stack.CurrentFrame().ModuleAddr)
	return s.GetMemory(inst.MemAddrs[0])
}

func (it *Interpreter) execMisc(s *Store, imm wasm.MiscImm) error {
	stack := it.stack
	switch imm.SubOpcode {
	case wasm.MiscI32TruncSatF32S:
		stack.Push(I32Value(truncSatI32S(float64(stack.Pop().F32()))))
	case wasm.MiscI32TruncSatF32U:
		stack.Push(I32Value(int32(truncSatI32U(float64(stack.Pop().F32())))))
	case wasm.MiscI32TruncSatF64S:
		stack.Push(I32Value(truncSatI32S(stack.Pop().F64())))
	case wasm.MiscI32TruncSatF64U:
		stack.Push(I32Value(int32(truncSatI32U(stack.Pop().F64()))))
	case wasm.MiscI64TruncSatF32S:
		stack.Push(I64Value(truncSatI64S(float64(stack.Pop().F32()))))
	case wasm.MiscI64TruncSatF32U:
		stack.Push(I64Value(int64(truncSatI64U(float64(stack.Pop().F32())))))
	case wasm.MiscI64TruncSatF64S:
		stack.Push(I64Value(truncSatI64S(stack.Pop().F64())))
	case wasm.MiscI64TruncSatF64U:
		stack.Push(I64Value(int64(truncSatI64U(stack.Pop().F64()))))

	case wasm.MiscMemoryInit:
		inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
		data := &inst.Datas[imm.Operands[0]]
		mem := it.memory(s)
		n := uint64(uint32(stack.Pop().I32()))
		src := uint64(uint32(stack.Pop().I32()))
		dst := uint64(uint32(stack.Pop().I32()))
		return mem.Init(dst, src, n, data.Bytes)

	case wasm.MiscDataDrop:
		inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
		inst.Datas[imm.Operands[0]].Bytes = nil

	case wasm.MiscMemoryCopy:
		mem := it.memory(s)
		n := uint64(uint32(stack.Pop().I32()))
		src := uint64(uint32(stack.Pop().I32()))
		dst := uint64(uint32(stack.Pop().I32()))
		return mem.Copy(mem, dst, src, n)

	case wasm.MiscMemoryFill:
		mem := it.memory(s)
		n := uint64(uint32(stack.Pop().I32()))
		val := byte(stack.Pop().I32())
		dst := uint64(uint32(stack.Pop().I32()))
		return mem.Fill(dst, n, val)

	case wasm.MiscTableInit:
		inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
		elem := &inst.Elements[imm.Operands[0]]
		table := s.GetTable(inst.TableAddrs[imm.Operands[1]])
		n := uint64(uint32(stack.Pop().I32()))
		src := uint64(uint32(stack.Pop().I32()))
		dst := uint64(uint32(stack.Pop().I32()))
		return table.Init(dst, src, n, elem.FuncAddrs)

	case wasm.MiscElemDrop:
		inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
		inst.Elements[imm.Operands[0]].FuncAddrs = nil

	case wasm.MiscTableCopy:
		inst := s.GetModule(stack.CurrentFrame().ModuleAddr)
		dstTable := s.GetTable(inst.TableAddrs[imm.Operands[0]])
		srcTable := s.GetTable(inst.TableAddrs[imm.Operands[1]])
		n := uint64(uint32(stack.Pop().I32()))
		src := uint64(uint32(stack.Pop().I32()))
		dst := uint64(uint32(stack.Pop().I32()))
		return srcTable.Copy(dstTable, dst, src, n)

	default:
		return errors.InvalidInput(errors.PhaseExec, "unhandled misc opcode")
	}
	return nil
}

// EvalConstExpr evaluates a constant expression in a minimal frame bound to
// the given module instance, returning the produced value.
func (it *Interpreter) EvalConstExpr(s *Store, moduleAddr uint32, expr []byte) (Value, error) {
	code, err := it.provider.Expr(expr)
	if err != nil {
		return Value{}, err
	}
	it.stack.PushFrame(moduleAddr, 0, nil)
	it.stack.PushLabel(LabelBlock, 1, len(code.Instrs))
	if err := it.exec(s, code); err != nil {
		it.stack.DropFrame()
		return Value{}, err
	}
	v := it.stack.Pop()
	it.stack.PopFrame()
	return v, nil
}

// logTrap records a trap for debugging before it propagates to the caller.
func logTrap(t *errors.Trap) {
	Logger().Debug("trap", zap.String("code", string(t.Code)), zap.String("detail", t.Detail))
}
