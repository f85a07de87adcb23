package analysis

import "tacc/internal/ir"

// InstructionRef locates a use or def within a function: the block it
// lives in, its absolute position in the function's block order, and its
// position within that block, per spec.md §4.6.
type InstructionRef struct {
	Block          *ir.BasicBlock
	AbsolutePos    int
	BlockBasePos   int
	IndexInBlock   int
	IsPhi          bool
	Instruction    *ir.Instruction
	Phi            *ir.Phi
}

// Uses is the def-use index (spec.md §4.6), grounded on
// original_source/src/core/poUses.h's poUses: for every SSA name, the set
// of instructions (or phi operands) that read it, in program order.
type Uses struct {
	defSite map[int]InstructionRef
	useSite map[int][]InstructionRef
}

// ComputeUses walks fn's blocks in order and indexes every def and use.
func ComputeUses(fn *ir.Function) *Uses {
	u := &Uses{
		defSite: map[int]InstructionRef{},
		useSite: map[int][]InstructionRef{},
	}

	abs := 0
	for _, b := range fn.CFG.Blocks {
		base := abs
		for i, p := range b.Phis {
			ref := InstructionRef{Block: b, AbsolutePos: abs, BlockBasePos: base, IndexInBlock: i, IsPhi: true, Phi: p}
			if !p.IsErased() {
				u.defSite[p.Name] = ref
				for _, op := range p.Operands {
					if op.Value != ir.NoName {
						u.addUse(op.Value, ref)
					}
				}
			}
			abs++
		}
		for i, ins := range b.Instructions {
			ref := InstructionRef{Block: b, AbsolutePos: abs, BlockBasePos: base, IndexInBlock: i, Instruction: ins}
			if !ins.IsErased() {
				if ins.Defines() {
					u.defSite[ins.Name] = ref
				}
				for _, op := range ins.Operands() {
					u.addUse(op, ref)
				}
			}
			abs++
		}
	}
	return u
}

func (u *Uses) addUse(name int, ref InstructionRef) {
	u.useSite[name] = append(u.useSite[name], ref)
}

// Def returns the instruction or phi defining name.
func (u *Uses) Def(name int) (InstructionRef, bool) {
	ref, ok := u.defSite[name]
	return ref, ok
}

// HasUses reports whether name is read anywhere in the function.
func (u *Uses) HasUses(name int) bool {
	return len(u.useSite[name]) > 0
}

// GetUses returns every use site of name, in program order.
func (u *Uses) GetUses(name int) []InstructionRef {
	return u.useSite[name]
}

// UseCount returns the number of uses of name.
func (u *Uses) UseCount(name int) int {
	return len(u.useSite[name])
}

// FindNextUse returns the first use of name at or after absolute
// position after, used by the linear register allocator's
// farthest-next-use spill heuristic (spec.md §4.13).
func (u *Uses) FindNextUse(name int, after int) (InstructionRef, bool) {
	best := InstructionRef{}
	found := false
	for _, ref := range u.useSite[name] {
		if ref.AbsolutePos < after {
			continue
		}
		if !found || ref.AbsolutePos < best.AbsolutePos {
			best = ref
			found = true
		}
	}
	return best, found
}

// RemoveUse drops a single use-site reference of name, used after a
// rewrite replaces an operand with another name.
func (u *Uses) RemoveUse(name int, ins *ir.Instruction) {
	refs := u.useSite[name]
	out := refs[:0]
	removed := false
	for _, r := range refs {
		if !removed && r.Instruction == ins {
			removed = true
			continue
		}
		out = append(out, r)
	}
	u.useSite[name] = out
}
