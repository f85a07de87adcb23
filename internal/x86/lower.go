package x86

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
	"tacc/internal/regalloc"
)

// intArgRegs and sseArgRegs return the integer/float argument register
// order for conv (spec.md §4.16).
func intArgRegs(conv ir.CallingConvention) []Reg {
	if conv == ir.Windows {
		return windowsIntArgs
	}
	return systemVIntArgs
}

func sseArgRegs(conv ir.CallingConvention) []XMM {
	if conv == ir.Windows {
		return windowsSSEArgs
	}
	return systemVSSEArgs
}

func calleeSaved(conv ir.CallingConvention) []Reg {
	if conv == ir.Windows {
		return windowsCalleeSaved
	}
	return systemVCalleeSaved
}

// locations resolves every instruction's register or stack-slot home at
// a given program position, using whichever of gpr/sse actually tracks
// that class.
type locations struct {
	gpr, sse *regalloc.Assignment
	uses     *analysis.Uses
	slots    *regalloc.StackSlotAllocator
}

func (l *locations) assignmentFor(t ir.Type) *regalloc.Assignment {
	if regalloc.ClassOf(t) == regalloc.SSE {
		return l.sse
	}
	return l.gpr
}

// operandOf returns the operand a use of name at pos should read: a
// register if one is resident there, else the memory slot it was spilled
// to.
func (l *locations) operandOf(name int, t ir.Type, pos int) Operand {
	asn := l.assignmentFor(t)
	if reg, ok := asn.RegisterByVariable(name, pos); ok {
		if asn.Class() == regalloc.SSE {
			return SSERegister(XMM(reg))
		}
		return Register(Reg(reg))
	}
	slot, _ := asn.SlotOf(name)
	return Memory(RBP, -int32(l.slots.Offset(slot))-8)
}

func (l *locations) spillStoreIfNeeded(name int, t ir.Type, pos int, value Operand) []Instruction {
	asn := l.assignmentFor(t)
	if !asn.SpillsAt(name, pos) {
		return nil
	}
	slot, ok := asn.SlotOf(name)
	if !ok {
		return nil
	}
	dst := Memory(RBP, -int32(l.slots.Offset(slot))-8)
	op := MOV
	if asn.Class() == regalloc.SSE {
		op = MOVSD
		if t.Kind == ir.F32 {
			op = MOVSS
		}
	}
	return []Instruction{{Op: op, Width: t.Width(), Dst: dst, Src: value}}
}

// Lower selects an x86-64 instruction sequence for every block of fn
// (spec.md §4.16), grounded on original_source/src/backend/po_x86_64.cpp.
// gpr and sse are the two per-class register assignments regalloc
// produced (linear or graph-coloring, the representations are unified);
// slots is the stack-slot allocator both allocators shared.
func Lower(mod *ir.Module, fn *ir.Function, gpr, sse *regalloc.Assignment, slots *regalloc.StackSlotAllocator) *LoweredFunction {
	uses := analysis.ComputeUses(fn)
	loc := &locations{gpr: gpr, sse: sse, uses: uses, slots: slots}

	lf := &LoweredFunction{Name: fn.QualifiedName, FrameSize: slots.FrameSize(), Saved: calleeSaved(fn.Convention)}

	pos := 0
	for _, b := range fn.CFG.Blocks {
		// phis contribute no machine code of their own: SSA destruct has
		// already renamed every member of a phi web to one representative
		// name and erased the phis, grounded on spec.md §4.8's destruction
		// step.
		pos += len(b.Phis)

		lb := &LoweredBlock{Block: b}
		intArgs, sseArgs := 0, 0
		for _, ins := range b.Instructions {
			if ins.IsErased() {
				pos++
				continue
			}
			lb.Instructions = append(lb.Instructions, lowerInstruction(mod, fn, ins, pos, loc, &intArgs, &sseArgs)...)
			pos++
		}
		lf.Blocks = append(lf.Blocks, lb)
	}
	return lf
}

func lowerInstruction(mod *ir.Module, fn *ir.Function, ins *ir.Instruction, pos int, loc *locations, intArgs, sseArgs *int) []Instruction {
	var out []Instruction
	emitSpill := func(name int, t ir.Type, value Operand) {
		out = append(out, loc.spillStoreIfNeeded(name, t, pos, value)...)
	}

	switch ins.Code {
	case ir.CONSTANT:
		c := mod.Constants.Get(int(ins.Aux))
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		op := MOV
		if ins.Type.IsFloat() {
			op = MOVSD
			if ins.Type.Kind == ir.F32 {
				op = MOVSS
			}
		}
		out = append(out, Instruction{Op: op, Width: ins.Type.Width(), Dst: dst, Src: Immediate(int64(c.IntBits))})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.PARAM:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		var src Operand
		if regalloc.ClassOf(ins.Type) == regalloc.SSE {
			regs := sseArgRegs(fn.Convention)
			src = SSERegister(regs[int(ins.Aux)%len(regs)])
		} else {
			regs := intArgRegs(fn.Convention)
			src = Register(regs[int(ins.Aux)%len(regs)])
		}
		out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: src})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.COPY:
		src := loc.operandOf(ins.Left, ins.Type, pos)
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		if src != dst { // "COPY lowers to MOV only when source and destination differ" (§4.16)
			out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: src})
		}
		emitSpill(ins.Name, ins.Type, dst)

	case ir.ADD, ir.SUB, ir.AND, ir.OR, ir.LEFT_SHIFT, ir.RIGHT_SHIFT:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		lhs := loc.operandOf(ins.Left, ins.Type, pos)
		rhs := loc.operandOf(ins.Right, ins.Type, pos)
		if dst != lhs {
			out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: lhs})
		}
		out = append(out, Instruction{Op: arithOp(ins.Code, ins.Type), Width: ins.Type.Width(), Dst: dst, Src: rhs})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.MUL:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		lhs := loc.operandOf(ins.Left, ins.Type, pos)
		rhs := loc.operandOf(ins.Right, ins.Type, pos)
		if dst != lhs {
			out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: lhs})
		}
		op := IMUL
		if ins.Type.IsFloat() {
			op = MULSD
			if ins.Type.Kind == ir.F32 {
				op = MULSS
			}
		}
		out = append(out, Instruction{Op: op, Width: ins.Type.Width(), Dst: dst, Src: rhs})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.DIV, ir.MODULO:
		// RAX:RDX dividend pair and CDQE/CQO sign extension (§4.16).
		lhs := loc.operandOf(ins.Left, ins.Type, pos)
		rhs := loc.operandOf(ins.Right, ins.Type, pos)
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		if ins.Type.IsFloat() {
			op := DIVSD
			if ins.Type.Kind == ir.F32 {
				op = DIVSS
			}
			if dst != lhs {
				out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: lhs})
			}
			out = append(out, Instruction{Op: op, Width: ins.Type.Width(), Dst: dst, Src: rhs})
			emitSpill(ins.Name, ins.Type, dst)
			break
		}
		out = append(out, Instruction{Op: MOV, Width: ins.Type.Width(), Dst: Register(RAX), Src: lhs})
		if ins.Type.IsSigned() {
			out = append(out, Instruction{Op: CQO, Width: ins.Type.Width()})
			out = append(out, Instruction{Op: IDIV, Width: ins.Type.Width(), Src: rhs})
		} else {
			out = append(out, Instruction{Op: XOR, Width: ins.Type.Width(), Dst: Register(RDX), Src: Register(RDX)})
			out = append(out, Instruction{Op: DIV, Width: ins.Type.Width(), Src: rhs})
		}
		result := Register(RAX)
		if ins.Code == ir.MODULO {
			result = Register(RDX)
		}
		if dst != result {
			out = append(out, Instruction{Op: MOV, Width: ins.Type.Width(), Dst: dst, Src: result})
		}
		emitSpill(ins.Name, ins.Type, dst)

	case ir.UNARY_MINUS:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		src := loc.operandOf(ins.Left, ins.Type, pos)
		if ins.Type.IsFloat() {
			// 0 - src is the sign flip: XORPS/XORPD only take a
			// register/memory source, so a sign-mask immediate can't be
			// fed to them directly; zeroing dst via self-XOR sidesteps
			// needing a constant-pool mask operand.
			op := SUBSD
			if ins.Type.Kind == ir.F32 {
				op = SUBSS
			}
			zero := XORPD
			if ins.Type.Kind == ir.F32 {
				zero = XORPS
			}
			out = append(out, Instruction{Op: zero, Width: ins.Type.Width(), Dst: dst, Src: dst})
			out = append(out, Instruction{Op: op, Width: ins.Type.Width(), Dst: dst, Src: src})
		} else {
			if dst != src {
				out = append(out, Instruction{Op: MOV, Width: ins.Type.Width(), Dst: dst, Src: src})
			}
			out = append(out, Instruction{Op: NEG, Width: ins.Type.Width(), Dst: dst})
		}
		emitSpill(ins.Name, ins.Type, dst)

	case ir.SIGN_EXTEND, ir.ZERO_EXTEND, ir.BITWISE_CAST:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		src := loc.operandOf(ins.Left, ins.Type, pos)
		out = append(out, Instruction{Op: MOV, Width: ins.Type.Width(), Dst: dst, Src: src})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.CONVERT:
		srcType := sourceTypeOf(fn, ins.Left, ins.Type)
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		src := loc.operandOf(ins.Left, srcType, pos)
		var op Op
		switch {
		case ins.Type.IsFloat() && !srcType.IsFloat():
			op = CVTSI2SD
			if ins.Type.Kind == ir.F32 {
				op = CVTSI2SS
			}
		case !ins.Type.IsFloat() && srcType.IsFloat():
			op = CVTSD2SI
			if srcType.Kind == ir.F32 {
				op = CVTSS2SI
			}
		default:
			op = movFor(ins.Type)
		}
		out = append(out, Instruction{Op: op, Width: ins.Type.Width(), Dst: dst, Src: src})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.ALLOCA:
		slot, _ := loc.gpr.SlotOf(ins.Name)
		_ = slot // the allocated region lives at a fixed frame offset tracked by slots; ALLOCA itself emits no code once §4.9 has promoted scalar allocas away

	case ir.MALLOC:
		// out-of-line runtime call; modeled as a CALL to the module's
		// allocator symbol with the size argument already placed per the
		// calling convention by a preceding ARG.
		out = append(out, Instruction{Op: CALL, CallTarget: "tacc_malloc"})
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		out = append(out, Instruction{Op: MOV, Width: 8, Dst: dst, Src: Register(RAX)})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.LOAD:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		base := loc.operandOf(ins.Left, ir.PtrTo(ins.Type), pos)
		out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: derefOperand(base)})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.STORE:
		ptrType := ir.PtrTo(ins.Type) // best-effort: value's own type describes the pointee
		base := loc.operandOf(ins.Left, ptrType, pos)
		value := loc.operandOf(ins.Right, ins.Type, pos)
		out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: derefOperand(base), Src: value})

	case ir.PTR:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		base := loc.operandOf(ins.Left, ins.Type, pos)
		out = append(out, Instruction{Op: LEA, Width: 8, Dst: dst, Src: offsetOperand(base, int32(ins.Aux))})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.ELEMENT_PTR:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		base := loc.operandOf(ins.Left, ins.Type, pos)
		idx := loc.operandOf(ins.Right, ir.Prim(ir.I64), pos)
		out = append(out, Instruction{Op: MOV, Width: 8, Dst: dst, Src: idx})
		out = append(out, Instruction{Op: IMUL, Width: 8, Dst: dst, Src: Immediate(ins.Aux)})
		out = append(out, Instruction{Op: ADD, Width: 8, Dst: dst, Src: base})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.LOAD_GLOBAL:
		dst := loc.operandOf(ins.Name, ins.Type, pos)
		g := mod.Globals[int(ins.Aux)]
		out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: globalOperand(g.Name)})
		emitSpill(ins.Name, ins.Type, dst)

	case ir.STORE_GLOBAL:
		g := mod.Globals[int(ins.Aux)]
		value := loc.operandOf(ins.Right, g.Type, pos)
		out = append(out, Instruction{Op: movFor(g.Type), Width: g.Type.Width(), Dst: globalOperand(g.Name), Src: value})

	case ir.CMP:
		lhs := loc.operandOf(ins.Left, ins.Type, pos)
		rhs := loc.operandOf(ins.Right, ins.Type, pos)
		out = append(out, Instruction{Op: CMP, Width: ins.Type.Width(), Dst: lhs, Src: rhs})

	case ir.BR:
		b := blockOf(fn, ins)
		if ins.Predicate() == ir.Unconditional {
			out = append(out, Instruction{Op: JMP, JumpTarget: b.Branch})
			break
		}
		out = append(out, Instruction{Op: JCC, Cond: ins.Predicate(), JumpTarget: b.Branch})
		if b.Next != nil {
			out = append(out, Instruction{Op: JMP, JumpTarget: b.Next})
		}

	case ir.CALL:
		site := fn.CallAt(ins)
		out = append(out, Instruction{Op: CALL, CallTarget: site.Callee})
		if ins.Name != ir.NoName {
			dst := loc.operandOf(ins.Name, ins.Type, pos)
			src := Register(RAX)
			if regalloc.ClassOf(ins.Type) == regalloc.SSE {
				src = SSERegister(XMM0)
			}
			out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: dst, Src: src})
			emitSpill(ins.Name, ins.Type, dst)
		}

	case ir.ARG:
		src := loc.operandOf(ins.Left, ins.Type, pos)
		if regalloc.ClassOf(ins.Type) == regalloc.SSE {
			regs := sseArgRegs(fn.Convention)
			if *sseArgs < len(regs) {
				out = append(out, Instruction{Op: movFor(ins.Type), Width: ins.Type.Width(), Dst: SSERegister(regs[*sseArgs]), Src: src})
			} else {
				out = append(out, Instruction{Op: PUSH, Src: src})
			}
			*sseArgs++
		} else {
			regs := intArgRegs(fn.Convention)
			if *intArgs < len(regs) {
				out = append(out, Instruction{Op: MOV, Width: 8, Dst: Register(regs[*intArgs]), Src: src})
			} else {
				out = append(out, Instruction{Op: PUSH, Src: src})
			}
			*intArgs++
		}

	case ir.RETURN:
		if ins.Left != ir.NoName {
			retType := fn.ReturnType
			src := loc.operandOf(ins.Left, retType, pos)
			dst := Operand{Kind: OpReg, Reg: RAX}
			if regalloc.ClassOf(retType) == regalloc.SSE {
				dst = SSERegister(XMM0)
			}
			if src != dst {
				out = append(out, Instruction{Op: movFor(retType), Width: retType.Width(), Dst: dst, Src: src})
			}
		}
		out = append(out, Instruction{Op: RET})
	}
	return out
}

func movFor(t ir.Type) Op {
	if t.IsFloat() {
		if t.Kind == ir.F32 {
			return MOVSS
		}
		return MOVSD
	}
	return MOV
}

func arithOp(code ir.Code, t ir.Type) Op {
	if t.IsFloat() {
		f32 := t.Kind == ir.F32
		switch code {
		case ir.ADD:
			if f32 {
				return ADDSS
			}
			return ADDSD
		case ir.SUB:
			if f32 {
				return SUBSS
			}
			return SUBSD
		}
	}
	switch code {
	case ir.ADD:
		return ADD
	case ir.SUB:
		return SUB
	case ir.AND:
		return AND
	case ir.OR:
		return OR
	case ir.LEFT_SHIFT:
		return SHL
	case ir.RIGHT_SHIFT:
		if t.IsSigned() {
			return SAR
		}
		return SHR
	default:
		return NOP
	}
}

func derefOperand(base Operand) Operand {
	if base.Kind == OpReg {
		return Memory(base.Reg, 0)
	}
	return base // already a memory operand (spilled pointer); §4.16 treats this as the memory-addressing variant
}

func offsetOperand(base Operand, off int32) Operand {
	if base.Kind == OpReg {
		return Memory(base.Reg, off)
	}
	return Memory(base.Base, base.Disp+off)
}

func globalOperand(name string) Operand {
	return Operand{Kind: OpMem, Base: RIPRelative, Disp: 0}
}

// RIPRelative is a sentinel Reg value meaning "this memory operand is
// RIP-relative to a module symbol", resolved by the encoder/patcher
// rather than a base register.
const RIPRelative Reg = -1

// sourceTypeOf looks up name's own defined type, falling back to fallback
// when name is a parameter or other def this pass can't resolve cheaply.
// CONVERT needs the source's real type (float vs integer, width) to pick
// the right register class and CVT variant independent of the
// destination type carried on the instruction itself.
func sourceTypeOf(fn *ir.Function, name int, fallback ir.Type) ir.Type {
	if ins, phi, _ := fn.FindDef(name); ins != nil {
		return ins.Type
	} else if phi != nil {
		return phi.Type
	}
	return fallback
}

func blockOf(fn *ir.Function, br *ir.Instruction) *ir.BasicBlock {
	for _, b := range fn.CFG.Blocks {
		if t := b.Terminator(); t == br {
			return b
		}
	}
	return nil
}
