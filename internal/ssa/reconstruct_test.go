package ssa

import (
	"testing"

	"tacc/internal/ir"
)

func TestReconstructSynthesizesPhiAtJoin(t *testing.T) {
	mod := ir.NewModule()
	fn := ir.NewFunction("f", "f")
	g := fn.CFG
	entry := g.NewBlock()
	left := g.NewBlock()
	right := g.NewBlock()
	join := g.NewBlock()
	g.Append(entry)
	g.Append(left)
	g.Append(right)
	g.Append(join)
	entry.SetBranch(right, false)
	entry.Next = left
	left.SetBranch(join, true)
	right.Next = join
	g.RecomputeIncoming()

	const placeholder = 5
	left.AddInstruction(&ir.Instruction{Name: 101, Code: ir.CONSTANT, Type: ir.Prim(ir.I64)})
	right.AddInstruction(&ir.Instruction{Name: 102, Code: ir.CONSTANT, Type: ir.Prim(ir.I64)})
	joinCopy := &ir.Instruction{Name: 50, Code: ir.COPY, Left: placeholder, Type: ir.Prim(ir.I64)}
	join.AddInstruction(joinCopy)
	join.AddInstruction(&ir.Instruction{Name: ir.NoName, Code: ir.RETURN, Left: 50})

	defs := map[int]map[*ir.BasicBlock]int{
		placeholder: {left: 101, right: 102},
	}
	varType := map[int]ir.Type{placeholder: ir.Prim(ir.I64)}

	Reconstruct(mod, fn, defs, varType)

	if joinCopy.Left == placeholder {
		t.Fatal("the copy's source should have been resolved away from the placeholder id")
	}
	if len(join.Phis) != 1 {
		t.Fatalf("expected a synthesized phi at the join, got %d", len(join.Phis))
	}
	p := join.Phis[0]
	if joinCopy.Left != p.Name {
		t.Fatalf("copy should read the synthesized phi %d, got %d", p.Name, joinCopy.Left)
	}
	if v, ok := p.OperandFor(left); !ok || v != 101 {
		t.Fatalf("phi operand for left = %v, %v; want 101, true", v, ok)
	}
	if v, ok := p.OperandFor(right); !ok || v != 102 {
		t.Fatalf("phi operand for right = %v, %v; want 102, true", v, ok)
	}
}

func TestReconstructSingleDefNeedsNoPhi(t *testing.T) {
	mod := ir.NewModule()
	fn := ir.NewFunction("g", "g")
	g := fn.CFG
	entry := g.NewBlock()
	exit := g.NewBlock()
	g.Append(entry)
	g.Append(exit)
	entry.Next = exit
	g.RecomputeIncoming()

	const placeholder = 9
	entry.AddInstruction(&ir.Instruction{Name: 200, Code: ir.CONSTANT, Type: ir.Prim(ir.I32)})
	use := &ir.Instruction{Name: 201, Code: ir.COPY, Left: placeholder, Type: ir.Prim(ir.I32)}
	exit.AddInstruction(use)

	Reconstruct(mod, fn,
		map[int]map[*ir.BasicBlock]int{placeholder: {entry: 200}},
		map[int]ir.Type{placeholder: ir.Prim(ir.I32)})

	if use.Left != 200 {
		t.Fatalf("use should resolve directly to entry's definition, got %d", use.Left)
	}
	if len(exit.Phis) != 0 {
		t.Fatal("a single reaching definition should never need a phi")
	}
}
