package analysis

import (
	"testing"

	"tacc/internal/ir"
)

// buildStraightLine builds entry -> exit with a value defined in entry
// and used in exit, to exercise cross-block liveness.
func buildStraightLine() (*ir.Function, *ir.BasicBlock, *ir.BasicBlock) {
	fn := ir.NewFunction("f", "f")
	g := fn.CFG
	entry := g.NewBlock()
	exit := g.NewBlock()
	g.Append(entry)
	g.Append(exit)
	entry.Next = exit
	g.RecomputeIncoming()

	entry.AddInstruction(&ir.Instruction{Name: 1, Code: ir.CONSTANT, Aux: 0})
	exit.AddInstruction(&ir.Instruction{Name: 2, Code: ir.COPY, Left: 1})
	return fn, entry, exit
}

func TestLivenessCrossBlockValue(t *testing.T) {
	fn, entry, exit := buildStraightLine()
	l := ComputeLiveness(fn)

	if !l.LiveOut(entry)[1] {
		t.Fatal("name 1 should be live out of entry, used in exit")
	}
	if l.LiveIn(exit)[1] != true {
		t.Fatal("name 1 should be live in to exit")
	}
	r := l.RangeOf(1)
	if r.Start > r.End {
		t.Fatalf("invalid range for name 1: %+v", r)
	}
}

func TestLivenessDeadAfterLastUse(t *testing.T) {
	fn, _, _ := buildStraightLine()
	l := ComputeLiveness(fn)

	if l.LiveOut(fn.CFG.Blocks[1])[2] {
		t.Fatal("name 2 (copy result, unused) should not be live out of exit")
	}
}

func TestLivenessLoopCarriedValueSpansBody(t *testing.T) {
	g, entry, header, body, _ := buildLoop()
	fn := &ir.Function{CFG: g}
	_ = entry

	header.AddPhi(ir.NewPhi(10, ir.Prim(ir.I64)))
	phi := header.Phis[0]
	phi.SetOperandFor(entry, 1)
	phi.SetOperandFor(body, 11)
	body.AddInstruction(&ir.Instruction{Name: 11, Code: ir.ADD, Left: 10, Right: 10})

	l := ComputeLiveness(fn)
	r := l.RangeOf(10)
	bodyRange := Range{Start: l.blockStart[body], End: l.blockEnd[body]}
	if !r.Overlaps(bodyRange) {
		t.Fatalf("loop-carried phi name should be live across the body, got %+v vs body %+v", r, bodyRange)
	}
}
