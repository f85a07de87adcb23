package opt

import "tacc/internal/ir"

// DeadCodeEliminate implements spec.md §4.10: the live set is seeded from
// the operands of every side-effecting instruction (CMP, RETURN, ARG,
// BR, LOAD, STORE, CALL) and from every phi operand, then a single
// backward sweep over the function erases any instruction whose defined
// name never entered that set. The sweep visits blocks in the reverse of
// the CFG's reverse-postorder (i.e. roughly exit-to-entry) so
// that a single backward pass captures most transitive liveness without
// needing a fixed point; loop-carried liveness is already covered by the
// phi-operand seeding, since a back-edge phi's operand is live
// regardless of visit order. The sweep is monotone and runs once, per
// spec.md §4.10's closing sentence.
func DeadCodeEliminate(fn *ir.Function) {
	live := map[int]bool{}
	seedSideEffects(fn, live)
	seedPhiOperands(fn, live)

	blocks := fn.CFG.ReversePostOrder()
	for i := len(blocks) - 1; i >= 0; i-- {
		sweepBlock(blocks[i], live)
	}

	for _, b := range fn.CFG.Blocks {
		b.Compact()
	}
}

func seedSideEffects(fn *ir.Function, live map[int]bool) {
	for _, ins := range fn.AllInstructions() {
		if ins.IsErased() || !ins.Code.HasSideEffect() {
			continue
		}
		for _, op := range ins.Operands() {
			live[op] = true
		}
	}
}

func seedPhiOperands(fn *ir.Function, live map[int]bool) {
	for _, p := range fn.AllPhis() {
		if p.IsErased() {
			continue
		}
		for _, v := range p.Names() {
			if v != ir.NoName {
				live[v] = true
			}
		}
	}
}

// sweepBlock walks b's instructions from last to first. A side-effecting
// instruction is always kept and its operands stay recorded live. A
// non-side-effecting instruction is kept only while its defined name is
// in the live set (at which point its own operands are added, letting
// liveness propagate further back); otherwise it is erased.
func sweepBlock(b *ir.BasicBlock, live map[int]bool) {
	for i := len(b.Instructions) - 1; i >= 0; i-- {
		ins := b.Instructions[i]
		if ins.IsErased() {
			continue
		}
		if ins.Code.HasSideEffect() {
			for _, op := range ins.Operands() {
				live[op] = true
			}
			continue
		}
		if ins.Defines() && live[ins.Name] {
			for _, op := range ins.Operands() {
				live[op] = true
			}
			continue
		}
		if !ins.Defines() {
			// A non-side-effecting instruction that defines nothing (this
			// set is empty today, since every opcode lacking a side effect
			// also defines a name) is kept conservatively.
			continue
		}
		ins.Erase()
	}
}
