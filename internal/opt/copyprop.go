package opt

import "tacc/internal/ir"

// CopyPropagate implements spec.md §4.11: for each COPY `x = y`, if
// every use of x is a non-special, non-phi instruction, every such use's
// operand is rewritten from x to y and the COPY is erased; otherwise it
// is left alone. A trailing compaction sweep removes the erased COPYs.
func CopyPropagate(fn *ir.Function) {
	uses := map[int][]*ir.Instruction{}
	phiUses := map[int]bool{}
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.IsErased() {
				continue
			}
			for _, op := range ins.Operands() {
				uses[op] = append(uses[op], ins)
			}
		}
		for _, p := range b.Phis {
			if p.IsErased() {
				continue
			}
			for _, v := range p.Names() {
				phiUses[v] = true
			}
		}
	}

	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.IsErased() || ins.Code != ir.COPY {
				continue
			}
			x, y := ins.Name, ins.Left
			if phiUses[x] {
				continue
			}
			consumers := uses[x]
			eligible := true
			for _, c := range consumers {
				if c.Code.IsSpecial() {
					eligible = false
					break
				}
			}
			if !eligible {
				continue
			}
			for _, c := range consumers {
				c.ReplaceOperand(x, y)
			}
			ins.Erase()
		}
	}

	for _, b := range fn.CFG.Blocks {
		b.Compact()
	}
}
