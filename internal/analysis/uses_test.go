package analysis

import (
	"testing"

	"tacc/internal/ir"
)

func TestUsesTracksDefAndUseSites(t *testing.T) {
	fn, _, exit := buildStraightLine()
	u := ComputeUses(fn)

	if !u.HasUses(1) {
		t.Fatal("name 1 should have a use (consumed by the copy in exit)")
	}
	refs := u.GetUses(1)
	if len(refs) != 1 || refs[0].Block != exit {
		t.Fatalf("expected exactly one use of name 1 in exit, got %v", refs)
	}

	def, ok := u.Def(2)
	if !ok || def.Block != exit {
		t.Fatalf("expected name 2's def in exit, got %+v, %v", def, ok)
	}
	if u.HasUses(2) {
		t.Fatal("name 2 (copy result) is never read")
	}
}

func TestUsesFindNextUse(t *testing.T) {
	fn := ir.NewFunction("f", "f")
	b := fn.CFG.NewBlock()
	fn.CFG.Append(b)
	b.AddInstruction(&ir.Instruction{Name: 1, Code: ir.CONSTANT})
	b.AddInstruction(&ir.Instruction{Name: 2, Code: ir.COPY, Left: 1})
	b.AddInstruction(&ir.Instruction{Name: 3, Code: ir.COPY, Left: 1})

	u := ComputeUses(fn)
	first, ok := u.FindNextUse(1, 0)
	if !ok {
		t.Fatal("expected a use of name 1 at or after position 0")
	}
	second, ok := u.FindNextUse(1, first.AbsolutePos+1)
	if !ok {
		t.Fatal("expected a second use of name 1")
	}
	if second.AbsolutePos <= first.AbsolutePos {
		t.Fatalf("second use (%d) should come after first (%d)", second.AbsolutePos, first.AbsolutePos)
	}
}
