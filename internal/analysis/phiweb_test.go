package analysis

import (
	"testing"

	"tacc/internal/ir"
)

func TestPhiWebsMergeOperandsAndResult(t *testing.T) {
	g, entry, header, body, _ := buildLoop()
	fn := &ir.Function{CFG: g}
	_ = entry

	p := ir.NewPhi(10, ir.Prim(ir.I64))
	p.SetOperandFor(entry, 1)
	p.SetOperandFor(body, 11)
	header.AddPhi(p)

	w := ComputePhiWebs(fn)
	if !w.SameWeb(10, 1) {
		t.Fatal("phi result should share a web with its entry operand")
	}
	if !w.SameWeb(10, 11) {
		t.Fatal("phi result should share a web with its loop-carried operand")
	}
	if w.SameWeb(10, 999) {
		t.Fatal("an unrelated name must not be pulled into the web")
	}
}

func TestPhiWebsSingletonForUntouchedName(t *testing.T) {
	w := &PhiWebs{parent: map[int]int{}, rank: map[int]int{}}
	if w.Representative(42) != 42 {
		t.Fatal("a name never touched by any phi should be its own web")
	}
	members := w.Members(42)
	if len(members) != 1 || members[0] != 42 {
		t.Fatalf("singleton web members = %v, want [42]", members)
	}
}
