package ssa

import (
	"testing"

	"tacc/internal/ir"
)

func buildDiamondFn() (*ir.Module, *ir.Function, *ir.BasicBlock, *ir.BasicBlock, *ir.BasicBlock, *ir.BasicBlock) {
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
	left.Next = join
	left.SetBranch(join, true)
	right.Next = join
	g.RecomputeIncoming()

	const x = 5
	left.AddInstruction(&ir.Instruction{Name: x, Code: ir.CONSTANT, Type: ir.Prim(ir.I64), Aux: 0})
	right.AddInstruction(&ir.Instruction{Name: x, Code: ir.CONSTANT, Type: ir.Prim(ir.I64), Aux: 1})
	join.AddInstruction(&ir.Instruction{Name: ir.NoName, Code: ir.RETURN, Left: x})

	return mod, fn, entry, left, right, join
}

func TestConstructPlacesPhiAtJoin(t *testing.T) {
	mod, fn, _, left, right, join := buildDiamondFn()
	Construct(mod, fn)

	if len(join.Phis) != 1 {
		t.Fatalf("expected exactly one phi at the join, got %d", len(join.Phis))
	}
	p := join.Phis[0]

	leftDef := left.Instructions[0].Name
	rightDef := right.Instructions[0].Name
	if leftDef == 5 || rightDef == 5 {
		t.Fatal("definitions should have been renamed away from the raw variable id")
	}
	if leftDef == rightDef {
		t.Fatal("the two branches' definitions must get distinct SSA names")
	}

	if v, ok := p.OperandFor(left); !ok || v != leftDef {
		t.Fatalf("phi operand for left = %v, %v; want %d, true", v, ok, leftDef)
	}
	if v, ok := p.OperandFor(right); !ok || v != rightDef {
		t.Fatalf("phi operand for right = %v, %v; want %d, true", v, ok, rightDef)
	}

	ret := join.Instructions[len(join.Instructions)-1]
	if ret.Left != p.Name {
		t.Fatalf("RETURN should read the phi's name %d, got %d", p.Name, ret.Left)
	}
}

func TestConstructSingleDefNeedsNoPhi(t *testing.T) {
	mod := ir.NewModule()
	fn := ir.NewFunction("g", "g")
	g := fn.CFG
	entry := g.NewBlock()
	exit := g.NewBlock()
	g.Append(entry)
	g.Append(exit)
	entry.Next = exit
	g.RecomputeIncoming()

	const x = 7
	entry.AddInstruction(&ir.Instruction{Name: x, Code: ir.CONSTANT, Type: ir.Prim(ir.I32)})
	exit.AddInstruction(&ir.Instruction{Name: ir.NoName, Code: ir.RETURN, Left: x})

	Construct(mod, fn)

	if len(exit.Phis) != 0 {
		t.Fatalf("a single reaching definition should never need a phi, got %d", len(exit.Phis))
	}
	ret := exit.Instructions[0]
	if ret.Left != entry.Instructions[0].Name {
		t.Fatalf("RETURN should read entry's renamed definition, got %d vs %d", ret.Left, entry.Instructions[0].Name)
	}
}
