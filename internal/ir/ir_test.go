package ir

import "testing"

func buildDiamond() (*FlowGraph, *BasicBlock, *BasicBlock, *BasicBlock, *BasicBlock) {
	g := NewFlowGraph()
	entry := g.NewBlock()
	left := g.NewBlock()
	right := g.NewBlock()
	join := g.NewBlock()
	g.Append(entry)
	g.Append(left)
	g.Append(right)
	g.Append(join)

	entry.SetBranch(right, false)
	left.Next = right
	left.SetBranch(join, true)
	right.Next = join
	g.RecomputeIncoming()

	return g, entry, left, right, join
}

func TestFlowGraphSuccessorsAndIncoming(t *testing.T) {
	_, entry, left, right, join := buildDiamond()

	succ := entry.Successors()
	if len(succ) != 2 || succ[0] != left || succ[1] != right {
		t.Fatalf("entry successors = %v, want [left, right]", succ)
	}

	if len(join.Incoming) != 2 {
		t.Fatalf("join should have 2 predecessors, got %d", len(join.Incoming))
	}
}

func TestFlowGraphInsertAfterMaintainsOrder(t *testing.T) {
	g, entry, left, _, _ := buildDiamond()

	mid := g.NewBlock()
	g.InsertAfter(entry, mid)

	if entry.Next != mid {
		t.Fatalf("entry.Next = bb%d, want mid", entry.Next.ID)
	}
	if mid.Next != left {
		t.Fatalf("mid.Next = bb%d, want left", mid.Next.ID)
	}
	if left.Prev != mid {
		t.Fatalf("left.Prev = bb%d, want mid", left.Prev.ID)
	}
	if g.Blocks[1] != mid {
		t.Fatalf("Blocks[1] = bb%d, want mid", g.Blocks[1].ID)
	}
}

func TestBasicBlockCompactRemovesErased(t *testing.T) {
	b := newBlock(0)
	b.AddInstruction(&Instruction{Name: 1, Code: CONSTANT})
	b.AddInstruction(&Instruction{Name: 2, Code: CONSTANT})
	b.Instructions[0].Erase()
	b.Compact()

	if len(b.Instructions) != 1 {
		t.Fatalf("expected 1 instruction after compaction, got %d", len(b.Instructions))
	}
	if b.Instructions[0].Name != 2 {
		t.Fatalf("expected surviving instruction to be name 2, got %d", b.Instructions[0].Name)
	}
}

func TestInstructionOperandsExcludesAuxFields(t *testing.T) {
	cst := &Instruction{Name: 0, Code: CONSTANT, Aux: 5}
	if ops := cst.Operands(); len(ops) != 0 {
		t.Fatalf("CONSTANT should report no name operands, got %v", ops)
	}

	add := &Instruction{Name: 3, Code: ADD, Left: 1, Right: 2}
	ops := add.Operands()
	if len(ops) != 2 || ops[0] != 1 || ops[1] != 2 {
		t.Fatalf("ADD operands = %v, want [1 2]", ops)
	}

	br := &Instruction{Code: BR, Aux: int64(Less)}
	if ops := br.Operands(); len(ops) != 0 {
		t.Fatalf("BR should report no name operands, got %v", ops)
	}
	if br.Predicate() != Less {
		t.Fatalf("br.Predicate() = %v, want Less", br.Predicate())
	}
}

func TestInstructionDefines(t *testing.T) {
	ret := &Instruction{Name: NoName, Code: RETURN, Left: 4}
	if ret.Defines() {
		t.Fatal("RETURN should never define a name")
	}

	add := &Instruction{Name: 9, Code: ADD, Left: 1, Right: 2}
	if !add.Defines() {
		t.Fatal("ADD with a real name should define")
	}
}

func TestPhiOperandAlignment(t *testing.T) {
	_, _, left, right, join := buildDiamond()
	p := NewPhi(10, Prim(I64))
	p.SetOperandFor(left, 1)
	p.SetOperandFor(right, 2)
	join.AddPhi(p)

	if v, ok := p.OperandFor(left); !ok || v != 1 {
		t.Fatalf("OperandFor(left) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := p.OperandFor(right); !ok || v != 2 {
		t.Fatalf("OperandFor(right) = %d, %v; want 2, true", v, ok)
	}
	if len(p.Operands) != len(join.Incoming) {
		t.Fatalf("phi operand count %d != incoming count %d", len(p.Operands), len(join.Incoming))
	}
}

func TestModuleFreshNameIsMonotonic(t *testing.T) {
	m := NewModule()
	a := m.FreshName()
	b := m.FreshName()
	if b != a+1 {
		t.Fatalf("FreshName should be monotonic, got %d then %d", a, b)
	}
}

func TestConstantPoolUniquing(t *testing.T) {
	p := NewConstantPool()
	i1 := p.Intern(Constant{Type: Prim(I64), IntBits: 42})
	i2 := p.Intern(Constant{Type: Prim(I64), IntBits: 42})
	i3 := p.Intern(Constant{Type: Prim(I32), IntBits: 42})
	if i1 != i2 {
		t.Fatalf("identical constants should share a pool slot: %d != %d", i1, i2)
	}
	if i1 == i3 {
		t.Fatal("constants with different types must not alias")
	}
	if p.Len() != 2 {
		t.Fatalf("pool length = %d, want 2", p.Len())
	}
}

func TestTypeEqualityAndWidth(t *testing.T) {
	p1 := PtrTo(Prim(I32))
	p2 := PtrTo(Prim(I32))
	if !p1.Equal(p2) {
		t.Fatal("pointers to the same element type should be equal")
	}
	if p1.Width() != 8 {
		t.Fatalf("pointer width = %d, want 8", p1.Width())
	}
	arr := ArrayOf(Prim(I32), 4)
	if arr.Width() != 16 {
		t.Fatalf("array width = %d, want 16", arr.Width())
	}
}

// TestNoNameOpcodesAreNeverErased guards against a regression where
// IsErased was defined purely as Name == NoName: CMP, BR, RETURN, ARG,
// STORE, and STORE_GLOBAL always carry Name == NoName by convention
// (they never define a result), which must not read as "erased".
func TestNoNameOpcodesAreNeverErased(t *testing.T) {
	always := []Code{CMP, BR, RETURN, ARG, STORE, STORE_GLOBAL}
	for _, code := range always {
		ins := &Instruction{Name: NoName, Left: 1, Right: 2, Code: code}
		if ins.IsErased() {
			t.Fatalf("%v instruction with Name == NoName must not report IsErased", code)
		}
		if ins.Defines() {
			t.Fatalf("%v instruction must never report Defines", code)
		}
	}
}

func TestDefiningInstructionIsErasedOnlyAfterErase(t *testing.T) {
	ins := &Instruction{Name: 7, Code: ADD, Left: 1, Right: 2}
	if ins.IsErased() {
		t.Fatal("freshly constructed ADD with a real name must not be erased")
	}
	if !ins.Defines() {
		t.Fatal("ADD with a real name must report Defines")
	}
	ins.Erase()
	if !ins.IsErased() {
		t.Fatal("ADD must report IsErased after Erase")
	}
	if ins.Defines() {
		t.Fatal("an erased instruction must not report Defines")
	}
}
