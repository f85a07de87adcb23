package ssa

import (
	"testing"

	"tacc/internal/ir"
)

func TestDestructRewritesToRepresentativeAndErasesPhis(t *testing.T) {
	mod, fn, _, left, right, join := buildDiamondFn()
	Construct(mod, fn)

	Destruct(fn)

	if len(join.Phis) != 0 {
		t.Fatalf("destruct should erase every phi, got %d remaining", len(join.Phis))
	}

	leftDef := left.Instructions[0].Name
	rightDef := right.Instructions[0].Name
	ret := join.Instructions[len(join.Instructions)-1]

	if ret.Left != leftDef {
		t.Fatalf("destruct should coalesce the join's value onto left's web representative, got %d want %d", ret.Left, leftDef)
	}
	if rightDef != leftDef {
		t.Fatalf("left and right definitions should share one web representative after destruct, got %d and %d", leftDef, rightDef)
	}
}

func TestSplitCriticalEdgesInsertsBlockAndRewritesPhi(t *testing.T) {
	fn := ir.NewFunction("f", "f")
	g := fn.CFG
	entry := g.NewBlock()
	a := g.NewBlock()
	b := g.NewBlock()
	g.Append(entry)
	g.Append(a)
	g.Append(b)
	// entry has two successors (a, b); b has two predecessors (entry, a):
	// the entry->b edge is critical.
	entry.SetBranch(b, false)
	entry.Next = a
	a.Next = b
	g.RecomputeIncoming()

	p := ir.NewPhi(1, ir.Prim(ir.I32))
	p.SetOperandFor(entry, 10)
	p.SetOperandFor(a, 11)
	b.AddPhi(p)

	before := len(g.Blocks)
	SplitCriticalEdges(fn)
	if len(g.Blocks) != before+1 {
		t.Fatalf("expected one block inserted for the single critical edge, got %d new blocks", len(g.Blocks)-before)
	}

	if _, ok := p.OperandFor(entry); ok {
		t.Fatal("phi should no longer reference entry directly after the edge split")
	}
	found := false
	for _, op := range p.Operands {
		if op.Value == 10 {
			found = true
			if op.Pred == entry {
				t.Fatal("the split block, not entry, should now carry the entry-side operand")
			}
		}
	}
	if !found {
		t.Fatal("the entry-side operand value should survive the split")
	}
}
